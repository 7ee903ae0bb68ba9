package cloud

import (
	"context"
	"fmt"
	"log"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/rds"

	"github.com/Waryjustice/azure-incident-resolver/internal/domain"
)

// tierLadder orders RDS instance classes from smallest to largest.
// Scaling moves one rung up; the top rung cannot scale further.
var tierLadder = []string{
	"db.t3.micro",
	"db.t3.small",
	"db.t3.medium",
	"db.t3.large",
	"db.m5.large",
	"db.m5.xlarge",
	"db.m5.2xlarge",
}

// AWSClients bundles the AWS service clients the executors share.
type AWSClients struct {
	RDS *rds.Client
	EC2 *ec2.Client
}

// NewAWSClients loads default credentials for the given region.
func NewAWSClients(ctx context.Context, region string) (*AWSClients, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("aws config: %w", err)
	}
	return &AWSClients{
		RDS: rds.NewFromConfig(cfg),
		EC2: ec2.NewFromConfig(cfg),
	}, nil
}

// DatabaseScaler moves an RDS instance one tier up the ladder.
type DatabaseScaler struct {
	clients *AWSClients
	dryRun  bool
}

func NewDatabaseScaler(clients *AWSClients, dryRun bool) *DatabaseScaler {
	return &DatabaseScaler{clients: clients, dryRun: dryRun}
}

func (s *DatabaseScaler) Execute(ctx context.Context, incident *domain.Incident) domain.ImmediateFix {
	instanceID := incident.Resource.ID

	out, err := s.clients.RDS.DescribeDBInstances(ctx, &rds.DescribeDBInstancesInput{
		DBInstanceIdentifier: aws.String(instanceID),
	})
	if err != nil {
		return failedFix(fmt.Errorf("describe DB instance %s: %w", instanceID, err))
	}
	if len(out.DBInstances) == 0 {
		return failedFix(fmt.Errorf("DB instance %s not found", instanceID))
	}

	current := aws.ToString(out.DBInstances[0].DBInstanceClass)
	next, ok := nextTier(current)
	if !ok {
		return failedFix(fmt.Errorf("DB instance %s already at top tier %s", instanceID, current))
	}

	if s.dryRun {
		log.Printf("[cloud] dry run: would scale %s from %s to %s", instanceID, current, next)
		return domain.ImmediateFix{
			Success: true,
			Details: fmt.Sprintf("dry run: would scale from %s to %s", current, next),
		}
	}

	_, err = s.clients.RDS.ModifyDBInstance(ctx, &rds.ModifyDBInstanceInput{
		DBInstanceIdentifier: aws.String(instanceID),
		DBInstanceClass:      aws.String(next),
		ApplyImmediately:     aws.Bool(true),
	})
	if err != nil {
		return failedFix(fmt.Errorf("scale DB instance %s: %w", instanceID, err))
	}
	log.Printf("[cloud] scaled DB instance %s from %s to %s", instanceID, current, next)

	return domain.ImmediateFix{
		Success: true,
		Details: fmt.Sprintf("scaled from %s to %s", current, next),
	}
}

func nextTier(current string) (string, bool) {
	for i, tier := range tierLadder {
		if tier == current && i+1 < len(tierLadder) {
			return tierLadder[i+1], true
		}
	}
	return "", false
}

// InstanceRebooter restarts an EC2-backed service by rebooting its instance.
type InstanceRebooter struct {
	clients *AWSClients
	dryRun  bool
}

func NewInstanceRebooter(clients *AWSClients, dryRun bool) *InstanceRebooter {
	return &InstanceRebooter{clients: clients, dryRun: dryRun}
}

func (r *InstanceRebooter) Execute(ctx context.Context, incident *domain.Incident) domain.ImmediateFix {
	instanceID := incident.Resource.ID

	if r.dryRun {
		log.Printf("[cloud] dry run: would reboot instance %s", instanceID)
		return domain.ImmediateFix{
			Success: true,
			Details: fmt.Sprintf("dry run: would reboot instance %s", instanceID),
		}
	}

	_, err := r.clients.EC2.RebootInstances(ctx, &ec2.RebootInstancesInput{
		InstanceIds: []string{instanceID},
	})
	if err != nil {
		return failedFix(fmt.Errorf("reboot instance %s: %w", instanceID, err))
	}
	log.Printf("[cloud] rebooted instance %s", instanceID)

	return domain.ImmediateFix{
		Success: true,
		Details: fmt.Sprintf("rebooted instance %s", instanceID),
	}
}

func failedFix(err error) domain.ImmediateFix {
	return domain.ImmediateFix{Success: false, Error: err.Error()}
}

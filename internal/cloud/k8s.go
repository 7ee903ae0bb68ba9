package cloud

import (
	"context"
	"fmt"
	"log"
	"strconv"

	appsv1 "k8s.io/api/apps/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/Waryjustice/azure-incident-resolver/internal/domain"
)

const revisionAnnotation = "deployment.kubernetes.io/revision"

// NewKubernetesClient builds a clientset from in-cluster config or a
// kubeconfig path, falling back to the default kubeconfig location.
func NewKubernetesClient(kubeconfig string) (kubernetes.Interface, error) {
	var cfg *rest.Config
	var err error

	if kubeconfig != "" {
		cfg, err = clientcmd.BuildConfigFromFlags("", kubeconfig)
	} else {
		cfg, err = rest.InClusterConfig()
		if err != nil {
			cfg, err = clientcmd.BuildConfigFromFlags("", clientcmd.RecommendedHomeFile)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("k8s config: %w", err)
	}

	cs, err := kubernetes.NewForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("k8s clientset: %w", err)
	}
	return cs, nil
}

// ServiceRestarter performs a rolling restart of the incident's service
// by deleting its pods one at a time and letting the controller reschedule.
type ServiceRestarter struct {
	clientset kubernetes.Interface
	namespace string
	dryRun    bool
}

func NewServiceRestarter(clientset kubernetes.Interface, namespace string, dryRun bool) *ServiceRestarter {
	return &ServiceRestarter{clientset: clientset, namespace: namespace, dryRun: dryRun}
}

func (r *ServiceRestarter) Execute(ctx context.Context, incident *domain.Incident) domain.ImmediateFix {
	selector := "app=" + incident.Resource.Name

	pods, err := r.clientset.CoreV1().Pods(r.namespace).List(ctx, metav1.ListOptions{LabelSelector: selector})
	if err != nil {
		return failedFix(fmt.Errorf("list pods for %s: %w", selector, err))
	}
	if len(pods.Items) == 0 {
		return failedFix(fmt.Errorf("no pods match selector %s in %s", selector, r.namespace))
	}

	if r.dryRun {
		log.Printf("[cloud] dry run: would restart %d pods in %s", len(pods.Items), r.namespace)
		return domain.ImmediateFix{
			Success: true,
			Details: fmt.Sprintf("dry run: would restart %d pods", len(pods.Items)),
		}
	}

	restarted := 0
	for _, pod := range pods.Items {
		if err := r.clientset.CoreV1().Pods(r.namespace).Delete(ctx, pod.Name, metav1.DeleteOptions{}); err != nil {
			log.Printf("[cloud] delete pod %s failed: %v", pod.Name, err)
			continue
		}
		restarted++
	}
	if restarted == 0 {
		return failedFix(fmt.Errorf("failed to restart any of %d pods", len(pods.Items)))
	}
	log.Printf("[cloud] restarted %d/%d pods for %s in %s", restarted, len(pods.Items), incident.Resource.Name, r.namespace)

	return domain.ImmediateFix{
		Success: true,
		Details: fmt.Sprintf("restarted %d pods", restarted),
	}
}

// DeploymentRollback reverts a deployment to its previous ReplicaSet
// revision, mirroring a rollout undo.
type DeploymentRollback struct {
	clientset kubernetes.Interface
	namespace string
	dryRun    bool
}

func NewDeploymentRollback(clientset kubernetes.Interface, namespace string, dryRun bool) *DeploymentRollback {
	return &DeploymentRollback{clientset: clientset, namespace: namespace, dryRun: dryRun}
}

func (r *DeploymentRollback) Execute(ctx context.Context, incident *domain.Incident) domain.ImmediateFix {
	name := incident.Resource.Name

	deployment, err := r.clientset.AppsV1().Deployments(r.namespace).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return failedFix(fmt.Errorf("get deployment %s: %w", name, err))
	}

	previous, err := r.previousReplicaSet(ctx, deployment)
	if err != nil {
		return failedFix(err)
	}

	if r.dryRun {
		log.Printf("[cloud] dry run: would roll back deployment %s to revision %s",
			name, previous.Annotations[revisionAnnotation])
		return domain.ImmediateFix{
			Success: true,
			Details: fmt.Sprintf("dry run: would roll back to revision %s", previous.Annotations[revisionAnnotation]),
		}
	}

	deployment.Spec.Template = previous.Spec.Template
	if _, err := r.clientset.AppsV1().Deployments(r.namespace).Update(ctx, deployment, metav1.UpdateOptions{}); err != nil {
		return failedFix(fmt.Errorf("roll back deployment %s: %w", name, err))
	}
	log.Printf("[cloud] rolled back deployment %s to revision %s", name, previous.Annotations[revisionAnnotation])

	return domain.ImmediateFix{
		Success: true,
		Details: fmt.Sprintf("rolled back to revision %s", previous.Annotations[revisionAnnotation]),
	}
}

// previousReplicaSet finds the ReplicaSet one revision behind the
// deployment's current one.
func (r *DeploymentRollback) previousReplicaSet(ctx context.Context, deployment *appsv1.Deployment) (*appsv1.ReplicaSet, error) {
	currentRev, err := strconv.ParseInt(deployment.Annotations[revisionAnnotation], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("deployment %s has no revision annotation", deployment.Name)
	}

	selector, err := metav1.LabelSelectorAsSelector(deployment.Spec.Selector)
	if err != nil {
		return nil, fmt.Errorf("deployment %s selector: %w", deployment.Name, err)
	}

	sets, err := r.clientset.AppsV1().ReplicaSets(r.namespace).List(ctx, metav1.ListOptions{LabelSelector: selector.String()})
	if err != nil {
		return nil, fmt.Errorf("list replica sets: %w", err)
	}

	var previous *appsv1.ReplicaSet
	var previousRev int64
	for i := range sets.Items {
		rs := &sets.Items[i]
		rev, err := strconv.ParseInt(rs.Annotations[revisionAnnotation], 10, 64)
		if err != nil || rev >= currentRev {
			continue
		}
		if previous == nil || rev > previousRev {
			previous = rs
			previousRev = rev
		}
	}
	if previous == nil {
		return nil, fmt.Errorf("deployment %s has no previous revision to roll back to", deployment.Name)
	}
	return previous, nil
}

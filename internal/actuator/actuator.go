/*
Copyright 2025 The llm-d Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package actuator

import (
	"context"
	"fmt"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	ctrl "sigs.k8s.io/controller-runtime"

	"github.com/llm-d/lazymc-k8s-scaler/internal/logging"
)

// ScaleState is the replica state of a workload as reported by its scale subresource.
type ScaleState struct {
	// DesiredReplicas is spec.replicas, the count the scheduler converges to.
	DesiredReplicas int32
	// ObservedReplicas is status.replicas, the count currently running.
	ObservedReplicas int32
}

// ScaleClient reads and writes the replica count of a single workload.
type ScaleClient interface {
	// GetScale returns the current scale of the named workload.
	GetScale(ctx context.Context, namespace, name string) (ScaleState, error)
	// SetScale requests the named workload to run the given number of replicas.
	// It does not wait for the scheduler to converge.
	SetScale(ctx context.Context, namespace, name string, replicas int32) error
}

// DeploymentScaler implements ScaleClient on the deployments/scale subresource.
type DeploymentScaler struct {
	client kubernetes.Interface
}

var _ ScaleClient = (*DeploymentScaler)(nil)

// NewDeploymentScaler returns a ScaleClient for apps/v1 Deployments.
func NewDeploymentScaler(client kubernetes.Interface) *DeploymentScaler {
	return &DeploymentScaler{client: client}
}

// GetScale implements ScaleClient.
func (d *DeploymentScaler) GetScale(ctx context.Context, namespace, name string) (ScaleState, error) {
	scale, err := d.client.AppsV1().Deployments(namespace).GetScale(ctx, name, metav1.GetOptions{})
	if err != nil {
		return ScaleState{}, fmt.Errorf("reading scale of deployment %s/%s: %w", namespace, name, err)
	}

	ctrl.LoggerFrom(ctx).V(logging.DEBUG).Info("Read deployment scale",
		"deployment", name,
		"namespace", namespace,
		"desiredReplicas", scale.Spec.Replicas,
		"observedReplicas", scale.Status.Replicas)

	return ScaleState{
		DesiredReplicas:  scale.Spec.Replicas,
		ObservedReplicas: scale.Status.Replicas,
	}, nil
}

// SetScale implements ScaleClient as a read-modify-write of the scale
// subresource, so the update carries the resourceVersion it was based on.
func (d *DeploymentScaler) SetScale(ctx context.Context, namespace, name string, replicas int32) error {
	deployments := d.client.AppsV1().Deployments(namespace)

	scale, err := deployments.GetScale(ctx, name, metav1.GetOptions{})
	if err != nil {
		return fmt.Errorf("reading scale of deployment %s/%s: %w", namespace, name, err)
	}

	scale.Spec.Replicas = replicas
	if _, err := deployments.UpdateScale(ctx, name, scale, metav1.UpdateOptions{}); err != nil {
		return fmt.Errorf("updating scale of deployment %s/%s to %d: %w", namespace, name, replicas, err)
	}

	ctrl.LoggerFrom(ctx).V(logging.DEBUG).Info("Updated deployment scale",
		"deployment", name,
		"namespace", namespace,
		"replicas", replicas)
	return nil
}

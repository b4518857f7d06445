// Package actuator reads and writes the replica count of the managed workload.
//
// The sidecar drives a single Deployment through its scale subresource:
//
//	Controller → ScaleClient → deployments/scale → ReplicaSet → Pods
//
// # ScaleClient
//
// ScaleClient is the capability the controller depends on:
//
//	type ScaleClient interface {
//	    GetScale(ctx, namespace, name) (ScaleState, error)
//	    SetScale(ctx, namespace, name, replicas) error
//	}
//
// ScaleState carries spec.replicas as DesiredReplicas and status.replicas as
// ObservedReplicas. SetScale returns as soon as the API server accepted the
// request; convergence is the caller's concern.
//
// # DeploymentScaler
//
// DeploymentScaler is the client-go implementation. Writes are
// read-modify-write on the scale subresource (GetScale then UpdateScale), so
// a concurrent writer surfaces as a conflict error instead of being silently
// overwritten.
//
// # Error Handling
//
// API errors are wrapped with the deployment's namespace and name and
// returned. Nothing is retried here; use apierrors.IsNotFound and friends on
// the unwrapped error to tell failures apart.
//
// # Usage Example
//
//	clientset, err := kubernetes.NewForConfig(restConfig)
//	if err != nil {
//	    return err
//	}
//	scaler := actuator.NewDeploymentScaler(clientset)
//
//	state, err := scaler.GetScale(ctx, "games", "minecraft")
//	if err != nil {
//	    return err
//	}
//	if state.DesiredReplicas != 1 {
//	    err = scaler.SetScale(ctx, "games", "minecraft", 1)
//	}
package actuator

// Package utils holds small Kubernetes helpers shared by the binary and the e2e suite.
package utils

import (
	"os"

	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

// UserAgent identifies the sidecar in API server audit logs.
const UserAgent = "lazymc-k8s-scaler"

// GetRestConfig loads the kubeconfig named by KUBECONFIG when it is set, and
// the pod's service account configuration otherwise.
func GetRestConfig() (*rest.Config, error) {
	cfg, err := func() (*rest.Config, error) {
		if kubeconfig := os.Getenv("KUBECONFIG"); kubeconfig != "" {
			return clientcmd.BuildConfigFromFlags("", kubeconfig)
		}
		return rest.InClusterConfig()
	}()
	if err != nil {
		return nil, err
	}

	cfg.UserAgent = UserAgent
	// Keep API deprecation warnings out of the log stream.
	cfg.WarningHandler = rest.NoWarnings{}
	return cfg, nil
}

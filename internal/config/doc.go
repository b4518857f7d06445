// Package config resolves the sidecar's run configuration.
//
// Configuration comes from environment variables and from the namespace file
// the kubelet mounts into every pod:
//
//	LAZYMC_K8S_DEPLOYMENT_NAME        name of the Deployment to scale (required)
//	LAZYMC_K8S_MIN_REPLICAS           replicas while sleeping (default 0)
//	LAZYMC_K8S_MAX_REPLICAS           replicas while active (default 1)
//	LAZYMC_K8S_LOG_LEVEL              debug, info, warning, error or fatal (default info)
//	LAZYMC_K8S_METRICS_BIND_ADDRESS   Prometheus endpoint address (default disabled)
//
// Resolve fails with ErrNotInCluster when the namespace file is missing and
// with ErrMissingDeploymentName when the deployment name is not set. Replica
// counts must be non-negative base-10 integers. Unknown log levels fall back
// to info.
//
// Example usage:
//
//	cfg, err := config.Resolve()
//	if err != nil {
//	    return err
//	}
//	for _, w := range cfg.Warnings() {
//	    setupLog.Info("suspicious configuration", "warning", w)
//	}
package config

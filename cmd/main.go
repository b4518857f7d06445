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

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-logr/logr"
	"go.uber.org/zap/zapcore"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	ctrl "sigs.k8s.io/controller-runtime"
	crmetrics "sigs.k8s.io/controller-runtime/pkg/metrics"
	metricsserver "sigs.k8s.io/controller-runtime/pkg/metrics/server"

	"github.com/llm-d/lazymc-k8s-scaler/internal/actuator"
	"github.com/llm-d/lazymc-k8s-scaler/internal/config"
	"github.com/llm-d/lazymc-k8s-scaler/internal/controller"
	"github.com/llm-d/lazymc-k8s-scaler/internal/logging"
	"github.com/llm-d/lazymc-k8s-scaler/internal/metrics"
	"github.com/llm-d/lazymc-k8s-scaler/internal/utils"
)

// Swapped out in tests.
var (
	resolveConfig           = func() (config.Config, error) { return config.Resolve() }
	newClientset            = newInClusterClientset
	stdout        io.Writer = os.Stdout
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := resolveConfig()
	if err != nil {
		// The global logger can only be set once, and the level is not known yet.
		return fail(logging.NewLogger(zapcore.InfoLevel, os.Stderr), err, "Unable to load configuration")
	}

	logger := logging.InitLogger(cfg.LogLevel.ZapLevel())
	setupLog := logger.WithName("setup")

	for _, warning := range cfg.Warnings() {
		setupLog.Info("Suspicious configuration", "warning", warning)
	}
	setupLog.V(logging.DEBUG).Info("Loaded configuration",
		"deployment", cfg.WorkloadName,
		"namespace", cfg.WorkloadNamespace,
		"minReplicas", cfg.MinReplicas,
		"maxReplicas", cfg.MaxReplicas,
		"logLevel", cfg.LogLevel)

	restConfig, clientset, err := newClientset()
	if err != nil {
		return fail(setupLog, err, "Unable to create kubernetes client")
	}
	setupLog.V(logging.DEBUG).Info("Loaded cluster config", "host", restConfig.Host)

	// Registered before the first API call so a SIGTERM received while scaling
	// up is handled once the scale-up returns. The registration stays in place
	// until exit, which swallows repeated SIGTERMs during the scale-down wait.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()
	setupLog.V(logging.DEBUG).Info("Registered termination signal handler")

	var opts []controller.Option
	if cfg.MetricsBindAddress != "" {
		// Kept alive through the scale-down wait, unlike ctx.
		metricsCtx, cancelMetrics := context.WithCancel(context.Background())
		defer cancelMetrics()
		if err := startMetricsServer(metricsCtx, cfg.MetricsBindAddress, restConfig, setupLog); err != nil {
			return fail(setupLog, err, "Unable to start metrics server")
		}
		opts = append(opts, controller.WithMetrics(metrics.NewRecorder(crmetrics.Registry)))
	}

	sc := controller.NewScaleController(cfg, actuator.NewDeploymentScaler(clientset), opts...)
	err = sc.Run(ctrl.LoggerInto(ctx, logger))
	if err != nil && !errors.Is(err, controller.ErrScaleDownTimeout) {
		// The timeout is reported by the controller itself.
		return fail(setupLog, err, "Scale controller failed", "state", sc.State().String())
	}
	return exitCode(err)
}

// exitCode maps the controller's result onto the process exit status: 0 only
// when the scale-down was confirmed.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	return 1
}

// fail echoes err to stdout, where it is visible in `kubectl logs` even when
// the logger is filtering errors out, logs it and returns the exit code.
func fail(logger logr.Logger, err error, msg string, keysAndValues ...any) int {
	fmt.Fprintln(stdout, err)
	logger.Error(err, msg, keysAndValues...)
	return exitCode(err)
}

func newInClusterClientset() (*rest.Config, kubernetes.Interface, error) {
	restConfig, err := utils.GetRestConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("loading cluster config: %w", err)
	}
	clientset, err := kubernetes.NewForConfig(restConfig)
	if err != nil {
		return nil, nil, err
	}
	return restConfig, clientset, nil
}

func startMetricsServer(ctx context.Context, addr string, restConfig *rest.Config, logger logr.Logger) error {
	httpClient, err := rest.HTTPClientFor(restConfig)
	if err != nil {
		return err
	}
	srv, err := metricsserver.NewServer(metricsserver.Options{BindAddress: addr}, restConfig, httpClient)
	if err != nil {
		return err
	}

	go func() {
		if err := srv.Start(ctx); err != nil {
			logger.Error(err, "Metrics server stopped")
		}
	}()
	logger.Info("Serving metrics", "address", addr)
	return nil
}

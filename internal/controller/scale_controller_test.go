package controller

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/mock"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	clocktesting "k8s.io/utils/clock/testing"
	ctrl "sigs.k8s.io/controller-runtime"

	"github.com/llm-d/lazymc-k8s-scaler/internal/actuator"
	"github.com/llm-d/lazymc-k8s-scaler/internal/config"
	"github.com/llm-d/lazymc-k8s-scaler/internal/logging"
	"github.com/llm-d/lazymc-k8s-scaler/internal/metrics"
)

const (
	testNamespace  = "games"
	testDeployment = "minecraft"
)

type mockScaleClient struct {
	mock.Mock
}

func (m *mockScaleClient) GetScale(ctx context.Context, namespace, name string) (actuator.ScaleState, error) {
	args := m.Called(ctx, namespace, name)
	return args.Get(0).(actuator.ScaleState), args.Error(1)
}

func (m *mockScaleClient) SetScale(ctx context.Context, namespace, name string, replicas int32) error {
	return m.Called(ctx, namespace, name, replicas).Error(0)
}

func (m *mockScaleClient) onGet(desired, observed int32) *mock.Call {
	return m.On("GetScale", mock.Anything, testNamespace, testDeployment).
		Return(actuator.ScaleState{DesiredReplicas: desired, ObservedReplicas: observed}, nil)
}

func (m *mockScaleClient) onSet(replicas int32) *mock.Call {
	return m.On("SetScale", mock.Anything, testNamespace, testDeployment, replicas).Return(nil)
}

func (m *mockScaleClient) methods() []string {
	var out []string
	for _, call := range m.Calls {
		out = append(out, call.Method)
	}
	return out
}

func testConfig(minReplicas, maxReplicas int32) config.Config {
	return config.Config{
		WorkloadName:      testDeployment,
		WorkloadNamespace: testNamespace,
		MinReplicas:       minReplicas,
		MaxReplicas:       maxReplicas,
		LogLevel:          config.LogLevelDebug,
	}
}

var _ = Describe("ScaleController", func() {
	var (
		ctx       context.Context
		client    *mockScaleClient
		fakeClock *clocktesting.FakeClock
		start     time.Time
	)

	BeforeEach(func() {
		ctx = context.Background()
		client = &mockScaleClient{}
		start = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
		fakeClock = clocktesting.NewFakeClock(start)
	})

	AfterEach(func() {
		client.AssertExpectations(GinkgoT())
	})

	newController := func(minReplicas, maxReplicas int32) *ScaleController {
		return NewScaleController(testConfig(minReplicas, maxReplicas), client,
			WithClock(fakeClock),
			WithMetrics(metrics.NewRecorder(prometheus.NewRegistry())))
	}

	It("should start in Reconciling", func() {
		Expect(newController(0, 1).State()).To(Equal(StateReconciling))
	})

	Context("Reconcile", func() {
		It("should scale up when the deployment is sleeping", func() {
			client.onGet(0, 0).Once()
			client.onSet(1).Once()
			sc := newController(0, 1)

			Expect(sc.Reconcile(ctx)).To(Succeed())

			Expect(client.methods()).To(Equal([]string{"GetScale", "SetScale"}))
			Expect(sc.State()).To(Equal(StateIdle))
			Expect(fakeClock.Since(start)).To(BeZero(), "scale-up must not wait for convergence")
		})

		It("should not write when the deployment is already active", func() {
			client.onGet(1, 1).Once()
			sc := newController(0, 1)

			Expect(sc.Reconcile(ctx)).To(Succeed())

			client.AssertNotCalled(GinkgoT(), "SetScale", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
			Expect(sc.State()).To(Equal(StateIdle))
		})

		It("should scale to max even when above it", func() {
			client.onGet(3, 3).Once()
			client.onSet(2).Once()
			sc := newController(0, 2)

			Expect(sc.Reconcile(ctx)).To(Succeed())
			Expect(sc.State()).To(Equal(StateIdle))
		})

		It("should return read errors without writing", func() {
			readErr := apierrors.NewServiceUnavailable("apiserver down")
			client.On("GetScale", mock.Anything, testNamespace, testDeployment).
				Return(actuator.ScaleState{}, readErr).Once()
			sc := newController(0, 1)

			err := sc.Reconcile(ctx)

			Expect(err).To(MatchError(readErr))
			Expect(client.methods()).To(Equal([]string{"GetScale"}))
			Expect(sc.State()).To(Equal(StateReconciling))
		})

		It("should return write errors", func() {
			writeErr := errors.New("conflict")
			client.onGet(0, 0).Once()
			client.On("SetScale", mock.Anything, testNamespace, testDeployment, int32(1)).Return(writeErr).Once()
			sc := newController(0, 1)

			Expect(sc.Reconcile(ctx)).To(MatchError(writeErr))
			Expect(sc.State()).To(Equal(StateReconciling))
		})
	})

	Context("HandleTermination", func() {
		It("should scale down before the first confirmation read", func() {
			client.onSet(0).Once()
			client.onGet(0, 0).Once()
			sc := newController(0, 1)

			Expect(sc.HandleTermination(ctx)).To(Succeed())

			Expect(client.methods()).To(Equal([]string{"SetScale", "GetScale"}))
			Expect(sc.State()).To(Equal(StateTerminated))
			Expect(fakeClock.Since(start)).To(BeZero())
		})

		It("should stop polling on the first confirmed read", func() {
			client.onSet(0).Once()
			client.onGet(0, 1).Twice()
			client.onGet(0, 0).Once()
			sc := newController(0, 1)

			Expect(sc.HandleTermination(ctx)).To(Succeed())

			client.AssertNumberOfCalls(GinkgoT(), "GetScale", 3)
			Expect(fakeClock.Since(start)).To(Equal(10 * time.Second))
		})

		It("should give up after 24 polls over 120 seconds", func() {
			client.onSet(0).Once()
			client.onGet(0, 1)
			sc := newController(0, 1)

			err := sc.HandleTermination(ctx)

			Expect(err).To(MatchError(ErrScaleDownTimeout))
			client.AssertNumberOfCalls(GinkgoT(), "GetScale", 24)
			Expect(fakeClock.Since(start)).To(Equal(DefaultScaleDownTimeout))
			Expect(sc.State()).To(Equal(StateTerminated))
		})

		It("should report the timeout when only fatal logging is enabled", func() {
			client.onSet(0).Once()
			client.onGet(0, 1)
			var buf bytes.Buffer
			logger := logging.NewLogger(config.LogLevelFatal.ZapLevel(), &buf)
			sc := newController(0, 1)

			err := sc.HandleTermination(ctrl.LoggerInto(ctx, logger))

			Expect(err).To(MatchError(ErrScaleDownTimeout))
			lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
			Expect(lines).To(HaveLen(2))
			Expect(lines[0]).To(ContainSubstring("Failed to scale down deployment"))
			Expect(lines[0]).NotTo(ContainSubstring(`"severity"`))
			Expect(lines[1]).To(ContainSubstring("Bailing out, you're on your own"))
			Expect(lines[1]).To(ContainSubstring(`"severity": "fatal"`))
			for _, line := range lines {
				Expect(line).To(ContainSubstring("ERROR"))
				Expect(line).To(ContainSubstring(logging.LoggerName))
			}
		})

		It("should honor a custom interval and timeout", func() {
			client.onSet(1).Once()
			client.onGet(1, 2)
			sc := NewScaleController(testConfig(1, 3), client,
				WithClock(fakeClock),
				WithPollInterval(time.Second),
				WithScaleDownTimeout(3*time.Second))

			Expect(sc.HandleTermination(ctx)).To(MatchError(ErrScaleDownTimeout))
			client.AssertNumberOfCalls(GinkgoT(), "GetScale", 3)
		})

		It("should compare observed replicas with a non-zero minimum", func() {
			client.onSet(2).Once()
			client.onGet(2, 3).Once()
			client.onGet(2, 2).Once()
			sc := newController(2, 4)

			Expect(sc.HandleTermination(ctx)).To(Succeed())
			Expect(fakeClock.Since(start)).To(Equal(DefaultPollInterval))
		})

		It("should not poll when the scale-down request fails", func() {
			writeErr := apierrors.NewServiceUnavailable("apiserver down")
			client.On("SetScale", mock.Anything, testNamespace, testDeployment, int32(0)).Return(writeErr).Once()
			sc := newController(0, 1)

			Expect(sc.HandleTermination(ctx)).To(MatchError(writeErr))
			client.AssertNotCalled(GinkgoT(), "GetScale", mock.Anything, mock.Anything, mock.Anything)
			Expect(sc.State()).To(Equal(StateTerminated))
		})

		It("should not retry a failed confirmation read", func() {
			readErr := errors.New("connection reset")
			client.onSet(0).Once()
			client.onGet(0, 1).Once()
			client.On("GetScale", mock.Anything, testNamespace, testDeployment).
				Return(actuator.ScaleState{}, readErr).Once()
			sc := newController(0, 1)

			Expect(sc.HandleTermination(ctx)).To(MatchError(readErr))
			client.AssertNumberOfCalls(GinkgoT(), "GetScale", 2)
		})

		It("should run the shutdown sequence only once", func() {
			client.onSet(0).Once()
			client.onGet(0, 0).Once()
			sc := newController(0, 1)

			Expect(sc.HandleTermination(ctx)).To(Succeed())
			Expect(sc.HandleTermination(ctx)).To(MatchError(ErrAlreadyTerminating))

			client.AssertNumberOfCalls(GinkgoT(), "SetScale", 1)
		})
	})

	Context("Run", func() {
		It("should idle until cancelled, then scale down", func() {
			client.onGet(0, 0).Once()
			client.onSet(1).Once()
			client.onSet(0).Once()
			client.onGet(0, 0).Once()
			sc := newController(0, 1)

			runCtx, cancel := context.WithCancel(ctx)
			defer cancel()
			done := make(chan error, 1)
			go func() {
				defer GinkgoRecover()
				done <- sc.Run(runCtx)
			}()

			Eventually(sc.State).Should(Equal(StateIdle))
			Consistently(done, 100*time.Millisecond).ShouldNot(Receive())
			client.AssertNumberOfCalls(GinkgoT(), "SetScale", 1)

			cancel()

			Eventually(done).Should(Receive(BeNil()))
			Expect(sc.State()).To(Equal(StateTerminated))
			client.AssertNumberOfCalls(GinkgoT(), "SetScale", 2)
		})

		It("should finish reconciling when the signal arrives early", func() {
			client.onGet(0, 0).Once()
			client.onSet(1).Once()
			client.onSet(0).Once()
			client.onGet(0, 0).Once()
			sc := newController(0, 1)

			runCtx, cancel := context.WithCancel(ctx)
			cancel()

			Expect(sc.Run(runCtx)).To(Succeed())
			Expect(client.methods()).To(Equal([]string{"GetScale", "SetScale", "SetScale", "GetScale"}))
		})

		It("should return the timeout error", func() {
			client.onGet(1, 1).Once()
			client.onSet(0).Once()
			client.onGet(0, 1)
			sc := newController(0, 1)

			runCtx, cancel := context.WithCancel(ctx)
			cancel()

			Expect(sc.Run(runCtx)).To(MatchError(ErrScaleDownTimeout))
		})

		It("should not idle when the startup read fails", func() {
			readErr := errors.New("unauthorized")
			client.On("GetScale", mock.Anything, testNamespace, testDeployment).
				Return(actuator.ScaleState{}, readErr).Once()
			sc := newController(0, 1)

			Expect(sc.Run(ctx)).To(MatchError(readErr))
			Expect(sc.State()).To(Equal(StateReconciling))
		})
	})
})

var _ = Describe("State", func() {
	It("should render every phase", func() {
		Expect(StateReconciling.String()).To(Equal("Reconciling"))
		Expect(StateIdle.String()).To(Equal("Idle"))
		Expect(StateTerminating.String()).To(Equal("Terminating"))
		Expect(StateTerminated.String()).To(Equal("Terminated"))
		Expect(State(42).String()).To(Equal("Unknown"))
	})
})

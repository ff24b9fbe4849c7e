// Package testdata provides utilities for generating sample metrics data
// to test Grafana dashboards without using real production data.
package main

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics for testing dashboards. Names and labels mirror the instruments
// the daemon registers in internal/observability.
var (
	// Chat metrics
	chatRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "medassistd_chat_requests_total",
			Help: "Chat requests by outcome",
		},
		[]string{"outcome"},
	)
	chatLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "medassistd_chat_latency_seconds",
			Help:    "End-to-end chat handling latency in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30, 60},
		},
	)

	// Tool metrics
	toolCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "medassistd_tool_calls_total",
			Help: "Tool invocations by tool name and outcome",
		},
		[]string{"tool", "outcome"},
	)

	// Triage metrics
	triageVerdicts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "medassistd_triage_verdicts_total",
			Help: "Triage verdicts by tier",
		},
		[]string{"tier"},
	)

	// Session metrics
	activeSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "medassistd_active_sessions",
			Help: "Sessions currently held in memory",
		},
	)
	sessionsEvicted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "medassistd_sessions_evicted_total",
			Help: "Sessions removed by the idle janitor",
		},
	)

	// Reminder metrics
	remindersDispatched = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "medassistd_reminders_dispatched_total",
			Help: "Reminder dispatch attempts by outcome",
		},
		[]string{"outcome"},
	)
	schedulerTicks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "medassistd_scheduler_ticks_total",
			Help: "Reminder sweep ticks by result",
		},
		[]string{"result"},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(
		// Chat
		chatRequests,
		chatLatency,
		// Tools
		toolCalls,
		// Triage
		triageVerdicts,
		// Sessions
		activeSessions,
		sessionsEvicted,
		// Reminders
		remindersDispatched,
		schedulerTicks,
	)
}

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "9091"
	}

	// Generate initial sample data
	generateSampleData()

	// Start background goroutine to continuously generate data
	ctx, cancel := context.WithCancel(context.Background())
	go generateContinuousData(ctx)

	// Serve metrics
	http.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:    ":" + port,
		Handler: nil,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		cancel()
		server.Shutdown(context.Background())
	}()

	fmt.Printf("Sample metrics server running on http://localhost:%s/metrics\n", port)
	fmt.Println("Press Ctrl+C to stop")
	fmt.Println("\nTo use with Prometheus, add this to prometheus.yml:")
	fmt.Printf("  - job_name: 'medassistd-test'\n    static_configs:\n      - targets: ['localhost:%s']\n", port)

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatal(err)
	}
}

var (
	chatOutcomes     = []string{"ok", "ok", "ok", "ok", "exhausted", "unavailable", "error"}
	toolNames        = []string{"search_knowledge", "triage_symptoms", "schedule_appointment", "set_reminder"}
	toolOutcomes     = []string{"ok", "ok", "ok", "error"}
	tiers            = []string{"self_care", "self_care", "see_doctor_soon", "emergency"}
	reminderOutcomes = []string{"sent", "sent", "sent", "guest_suppressed", "failed"}
)

func generateSampleData() {
	// Chat traffic skews towards ok with a realistic latency spread
	for i := 0; i < 200; i++ {
		chatRequests.WithLabelValues(randomChoice(chatOutcomes)).Inc()
		chatLatency.Observe(0.2 + rand.Float64()*4.0)
	}

	// A chat averages one or two tool calls
	for i := 0; i < 300; i++ {
		toolCalls.WithLabelValues(randomChoice(toolNames), randomChoice(toolOutcomes)).Inc()
	}

	// Triage runs on a subset of chats
	for i := 0; i < 80; i++ {
		triageVerdicts.WithLabelValues(randomChoice(tiers)).Inc()
	}

	// Reminder sweeps
	for i := 0; i < 120; i++ {
		schedulerTicks.WithLabelValues("ok").Inc()
	}
	for i := 0; i < 3; i++ {
		schedulerTicks.WithLabelValues("skipped").Inc()
	}
	for i := 0; i < 40; i++ {
		remindersDispatched.WithLabelValues(randomChoice(reminderOutcomes)).Inc()
	}

	// Session churn
	activeSessions.Set(float64(rand.Intn(30) + 5))
	for i := 0; i < 15; i++ {
		sessionsEvicted.Inc()
	}
}

func generateContinuousData(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Add some random activity
			if rand.Float64() > 0.3 {
				chatRequests.WithLabelValues(randomChoice(chatOutcomes)).Inc()
				chatLatency.Observe(0.2 + rand.Float64()*4.0)
				toolCalls.WithLabelValues(randomChoice(toolNames), randomChoice(toolOutcomes)).Inc()
			}
			if rand.Float64() > 0.6 {
				triageVerdicts.WithLabelValues(randomChoice(tiers)).Inc()
			}

			// The sweep ticks every interval whether or not reminders are due
			schedulerTicks.WithLabelValues("ok").Inc()
			if rand.Float64() > 0.7 {
				remindersDispatched.WithLabelValues(randomChoice(reminderOutcomes)).Inc()
			}

			// Session churn
			activeSessions.Set(float64(rand.Intn(30) + 5))
			if rand.Float64() > 0.8 {
				sessionsEvicted.Inc()
			}
		}
	}
}

func randomChoice(choices []string) string {
	return choices[rand.Intn(len(choices))]
}

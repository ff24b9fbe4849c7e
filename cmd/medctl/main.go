// Package main implements the medctl CLI for manual operations against
// a medassistd daemon: one-shot chat, rule-catalog validation,
// knowledge-base ingestion, and health checks.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var (
	// serverURL is the base URL for the medassistd HTTP server
	serverURL string
	// version information
	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "medctl",
	Short: "CLI for medassistd operations",
	Long: `medctl is a command-line interface for a running medassistd daemon.
It provides one-shot chat, triage rule-catalog validation, knowledge-base
ingestion, and health checks.`,
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080", "medassistd server URL")
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(rulesCmd)
	rootCmd.AddCommand(kbCmd)
}

var (
	chatSessionID  string
	chatPatientRef string
)

// chatCmd sends one message to the assistant
var chatCmd = &cobra.Command{
	Use:   "chat [message]",
	Short: "Send one chat message to the assistant",
	Long: `Send a single chat message to the medassistd daemon and print the reply.

The message comes from the arguments, or from stdin when absent or "-".
Every exchange prints its session id to stderr; pass it back with
--session to continue the conversation.

Examples:
  # Ask a question
  medctl chat "How much ibuprofen is safe for an adult?"

  # Continue a conversation
  medctl chat --session 6f1c0b2a "What about with food?"

  # Identify the patient so records tools work
  medctl chat --patient MRN-1001 "When is my next appointment?"

  # Read the message from stdin
  echo "I have a fever of 39C" | medctl chat -`,
	Args: cobra.ArbitraryArgs,
	RunE: runChat,
}

// healthCmd checks server health
var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check medassistd server health",
	Long: `Check the health status of the medassistd HTTP server.

Examples:
  # Check health
  medctl health

  # Check health on a different server
  medctl health --server http://localhost:9090`,
	RunE: runHealth,
}

func init() {
	chatCmd.Flags().StringVar(&chatSessionID, "session", "", "session id of a conversation to continue")
	chatCmd.Flags().StringVar(&chatPatientRef, "patient", "", "patient reference (e.g. MRN) for records access")
}

// chatRequest matches internal/orchestrator Request
type chatRequest struct {
	SessionID  string `json:"session_id,omitempty"`
	PatientRef string `json:"patient_ref,omitempty"`
	Message    string `json:"message"`
}

// chatResponse matches internal/orchestrator Response
type chatResponse struct {
	SessionID string   `json:"session_id"`
	Reply     string   `json:"reply"`
	Sources   []string `json:"sources,omitempty"`
	TriageTag string   `json:"triage_tag,omitempty"`
}

// healthResponse matches pkg/server HealthResponse
type healthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}

// runChat handles the chat command
func runChat(cmd *cobra.Command, args []string) error {
	message, err := readMessage(args)
	if err != nil {
		return err
	}

	reqJSON, err := json.Marshal(chatRequest{
		SessionID:  chatSessionID,
		PatientRef: chatPatientRef,
		Message:    message,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/api/v1/chat", serverURL)
	httpReq, err := http.NewRequest("POST", url, bytes.NewReader(reqJSON))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	// Tool loops against a slow model endpoint can take a while.
	client := &http.Client{
		Timeout: 120 * time.Second,
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to send request to %s: %w", url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return apiError(resp.StatusCode, body)
	}

	var chatResp chatResponse
	if err := json.Unmarshal(body, &chatResp); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	fmt.Println(chatResp.Reply)
	if len(chatResp.Sources) > 0 {
		fmt.Println("\nSources:")
		for _, s := range chatResp.Sources {
			fmt.Printf("  - %s\n", s)
		}
	}
	if chatResp.TriageTag != "" {
		fmt.Fprintf(os.Stderr, "[medctl] triage: %s\n", chatResp.TriageTag)
	}
	fmt.Fprintf(os.Stderr, "[medctl] session: %s\n", chatResp.SessionID)

	return nil
}

// runHealth handles the health command
func runHealth(cmd *cobra.Command, args []string) error {
	url := fmt.Sprintf("%s/health", serverURL)

	client := &http.Client{
		Timeout: 5 * time.Second,
	}

	resp, err := client.Get(url)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to connect to %s: %v\n", url, err)
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return apiError(resp.StatusCode, body)
	}

	var healthResp healthResponse
	if err := json.Unmarshal(body, &healthResp); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	fmt.Printf("Server Status: %s\n", healthResp.Status)
	fmt.Printf("Service:       %s\n", healthResp.Service)
	fmt.Printf("Server URL:    %s\n", serverURL)

	return nil
}

// readMessage joins the argument words into one message, or reads stdin
// when there are no arguments or the single argument is "-".
func readMessage(args []string) (string, error) {
	if len(args) == 0 || (len(args) == 1 && args[0] == "-") {
		content, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("failed to read from stdin: %w", err)
		}
		message := strings.TrimSpace(string(content))
		if message == "" {
			return "", fmt.Errorf("no message to send")
		}
		return message, nil
	}

	message := strings.TrimSpace(strings.Join(args, " "))
	if message == "" {
		return "", fmt.Errorf("no message to send")
	}
	return message, nil
}

// apiError renders the daemon's error envelope, falling back to the raw
// body when the response is not one.
func apiError(status int, body []byte) error {
	var envelope struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Code != "" {
		return fmt.Errorf("server returned %s: %s", envelope.Error.Code, envelope.Error.Message)
	}
	return fmt.Errorf("server returned status %d: %s", status, strings.TrimSpace(string(body)))
}

package main

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestReadMessage(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    string
		wantErr bool
	}{
		{
			name: "single argument",
			args: []string{"hello"},
			want: "hello",
		},
		{
			name: "words joined with spaces",
			args: []string{"how", "much", "ibuprofen"},
			want: "how much ibuprofen",
		},
		{
			name: "surrounding whitespace trimmed",
			args: []string{"  hello  "},
			want: "hello",
		},
		{
			name:    "blank arguments",
			args:    []string{"   ", ""},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := readMessage(tt.args)
			if (err != nil) != tt.wantErr {
				t.Fatalf("readMessage(%q) error = %v, wantErr %v", tt.args, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("readMessage(%q) = %q, want %q", tt.args, got, tt.want)
			}
		})
	}
}

func TestAPIError(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{
			name:   "error envelope",
			status: 404,
			body:   `{"error":{"code":"unknown_patient","message":"no patient with ref \"MRN-9\""}}`,
			want:   `server returned unknown_patient: no patient with ref "MRN-9"`,
		},
		{
			name:   "non-envelope JSON",
			status: 500,
			body:   `{"message":"boom"}`,
			want:   `server returned status 500: {"message":"boom"}`,
		},
		{
			name:   "plain text body",
			status: 502,
			body:   "bad gateway\n",
			want:   "server returned status 502: bad gateway",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := apiError(tt.status, []byte(tt.body))
			if err == nil {
				t.Fatal("apiError returned nil")
			}
			if err.Error() != tt.want {
				t.Errorf("apiError() = %q, want %q", err.Error(), tt.want)
			}
		})
	}
}

func TestChatRequestOmitsEmptyFields(t *testing.T) {
	data, err := json.Marshal(chatRequest{Message: "hi"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	got := string(data)
	for _, key := range []string{"session_id", "patient_ref"} {
		if strings.Contains(got, key) {
			t.Errorf("marshaled request %s should omit %q", got, key)
		}
	}
}

package models

import "testing"

func TestParseEnqueueRequest_BareCommand(t *testing.T) {
	req, err := ParseEnqueueRequest("  echo hello world \n")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if req.Command != "echo hello world" {
		t.Errorf("expected command 'echo hello world', got %q", req.Command)
	}
	if req.ID != nil || req.MaxRetries != nil {
		t.Error("expected id and max_retries unset for a bare command")
	}
}

func TestParseEnqueueRequest_JSONObject(t *testing.T) {
	req, err := ParseEnqueueRequest(`{"id":"job1","command":"sleep 2","max_retries":4}`)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if req.ID == nil || *req.ID != "job1" {
		t.Errorf("expected id job1, got %v", req.ID)
	}
	if req.Command != "sleep 2" {
		t.Errorf("expected command 'sleep 2', got %q", req.Command)
	}
	if req.MaxRetries == nil || *req.MaxRetries != 4 {
		t.Errorf("expected max_retries 4, got %v", req.MaxRetries)
	}
}

func TestParseEnqueueRequest_Errors(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"empty", ""},
		{"whitespace", "   "},
		{"truncated object", `{"command":`},
		{"unknown field", `{"command":"true","priority":1}`},
		{"wrong type", `{"command":"true","max_retries":"three"}`},
		{"trailing object", `{"command":"a"} {"command":"b"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseEnqueueRequest(tt.payload); err == nil {
				t.Errorf("expected error for payload %q", tt.payload)
			}
		})
	}
}

func TestJobState_Valid(t *testing.T) {
	for _, state := range AllStates {
		if !state.Valid() {
			t.Errorf("expected %s to be valid", state)
		}
	}
	if JobState("running").Valid() {
		t.Error("expected unknown state to be invalid")
	}
}

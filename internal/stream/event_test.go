// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"errors"
	"testing"
)

func TestParseLine(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		wantOK  bool
		wantErr bool
		want    Event
	}{
		{"content", `data: {"type":"content","content":"Hel"}`, true, false, Event{Type: EventContent, Content: "Hel"}},
		{"done with id", `data: {"type":"done","conversation_id":"c1"}`, true, false, Event{Type: EventDone, ConversationID: "c1"}},
		{"done null id", `data: {"type":"done","content":null,"conversation_id":null,"error":null}`, true, false, Event{Type: EventDone}},
		{"error", `data: {"type":"error","error":"boom"}`, true, false, Event{Type: EventError, Error: "boom"}},
		{"carriage return", "data: {\"type\":\"done\"}\r", true, false, Event{Type: EventDone}},
		{"unknown type passes through", `data: {"type":"ping"}`, true, false, Event{Type: "ping"}},
		{"blank", ``, false, false, Event{}},
		{"comment", `: ping`, false, false, Event{}},
		{"event field", `event: message`, false, false, Event{}},
		{"no space after colon", `data:{"type":"done"}`, false, false, Event{}},
		{"not json", `data: not-json`, true, true, Event{}},
		{"missing type", `data: {"content":"x"}`, true, true, Event{}},
		{"array payload", `data: []`, true, true, Event{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, ok, err := ParseLine(tt.line)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrMalformedEvent) {
				t.Errorf("error %v does not wrap ErrMalformedEvent", err)
			}
			if ev != tt.want {
				t.Errorf("event = %+v, want %+v", ev, tt.want)
			}
		})
	}
}

func TestFormatLine_ParsesBack(t *testing.T) {
	ev := Event{Type: EventDone, ConversationID: "abc"}
	line, err := FormatLine(ev)
	if err != nil {
		t.Fatal(err)
	}
	if line[len(line)-1] != '\n' {
		t.Fatalf("line %q is not newline terminated", line)
	}
	got, ok, err := ParseLine(line[:len(line)-1])
	if !ok || err != nil || got != ev {
		t.Errorf("ParseLine(FormatLine) = %+v, %v, %v", got, ok, err)
	}
}

func TestEvent_IsTerminal(t *testing.T) {
	if (Event{Type: EventContent}).IsTerminal() {
		t.Error("content should not be terminal")
	}
	if !(Event{Type: EventDone}).IsTerminal() || !(Event{Type: EventError}).IsTerminal() {
		t.Error("done and error should be terminal")
	}
}

package transport

import "testing"

func TestParseChatTarget(t *testing.T) {
	tests := []struct {
		in      string
		want    ChatTarget
		wantErr bool
	}{
		{in: "-1001234", want: ChatTarget{ChatID: -1001234}},
		{in: " -1001234:42 ", want: ChatTarget{ChatID: -1001234, ThreadID: 42}},
		{in: "", wantErr: true},
		{in: "abc", wantErr: true},
		{in: "0", wantErr: true},
		{in: "12:x", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseChatTarget(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %+v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("got %+v want %+v", got, tt.want)
			}
			back, err := ParseChatTarget(got.String())
			if err != nil || back != got {
				t.Fatalf("String() did not round trip: %q -> %+v (%v)", got.String(), back, err)
			}
		})
	}
}

func TestChatTargetContains(t *testing.T) {
	whole := ChatTarget{ChatID: 5}
	topic := ChatTarget{ChatID: 5, ThreadID: 9}

	if !whole.Contains(5, 0) || !whole.Contains(5, 9) {
		t.Fatalf("chat-wide target should match every thread")
	}
	if !topic.Contains(5, 9) || topic.Contains(5, 0) || topic.Contains(6, 9) {
		t.Fatalf("topic target matched wrongly")
	}
}

package event

import (
	"encoding/json"
	"testing"
)

func TestHub_BroadcastScopedToRoom(t *testing.T) {
	h := NewHub()

	a := h.join("conv-a")
	b := h.join("conv-b")
	defer h.leave("conv-a", a)
	defer h.leave("conv-b", b)

	h.Broadcast("conv-a", Frame{Type: FrameTyping, UserID: "u1", IsTyping: true})

	select {
	case f := <-a.send:
		if f.Type != FrameTyping || f.UserID != "u1" {
			t.Fatalf("frame = %+v", f)
		}
	default:
		t.Fatalf("no frame delivered to room member")
	}

	select {
	case f := <-b.send:
		t.Fatalf("unexpected frame in other room: %+v", f)
	default:
	}
}

func TestHub_SlowConsumerDropsFrames(t *testing.T) {
	h := NewHub()
	c := h.join("conv-a")
	defer h.leave("conv-a", c)

	for i := 0; i < sendBuffer+10; i++ {
		h.Broadcast("conv-a", Frame{Type: FrameTyping})
	}

	if got := len(c.send); got != sendBuffer {
		t.Fatalf("queued frames = %d, want %d", got, sendBuffer)
	}
}

func TestHub_LeaveDropsEmptyRoom(t *testing.T) {
	h := NewHub()

	c := h.join("conv-a")
	if got := h.RoomSize("conv-a"); got != 1 {
		t.Fatalf("RoomSize() = %d, want 1", got)
	}

	h.leave("conv-a", c)
	if got := h.RoomSize("conv-a"); got != 0 {
		t.Fatalf("RoomSize() = %d, want 0", got)
	}
}

func TestFrame_CodecRoundTrip(t *testing.T) {
	frames := []Frame{
		{Type: FrameMessage, ConversationID: "c1", UserID: "u1", Content: "hello", MessageType: "text"},
		{Type: FrameTyping, ConversationID: "c1", UserID: "u1", IsTyping: true},
		{Type: FrameAIResponse, ConversationID: "c1", UserID: "assistant"},
	}

	for _, in := range frames {
		data, err := json.Marshal(in)
		if err != nil {
			t.Fatalf("marshal %s frame: %v", in.Type, err)
		}
		var out Frame
		if err := json.Unmarshal(data, &out); err != nil {
			t.Fatalf("unmarshal %s frame: %v", in.Type, err)
		}
		if out.Type != in.Type || out.UserID != in.UserID || out.Content != in.Content || out.IsTyping != in.IsTyping {
			t.Fatalf("round trip changed frame: in=%+v out=%+v", in, out)
		}
	}
}

package session

import "testing"

func TestDecodeFrameValid(t *testing.T) {
	msg, ok := DecodeFrame([]byte(`{"type":"player_join","pin":"482913","name":"Alice"}`))
	if !ok {
		t.Fatalf("expected valid frame to decode")
	}
	if msg.Type != TypePlayerJoin || msg.Pin != "482913" || msg.Name != "Alice" {
		t.Fatalf("unexpected decode result: %+v", msg)
	}
}

func TestDecodeFrameMalformedJSON(t *testing.T) {
	if _, ok := DecodeFrame([]byte(`{"type": "answer"`)); ok {
		t.Fatalf("expected malformed JSON to be rejected")
	}
}

func TestDecodeFrameInvalidPin(t *testing.T) {
	cases := []string{
		`{"type":"player_join","pin":"12345"}`,
		`{"type":"player_join","pin":"1234567"}`,
		`{"type":"player_join","pin":"12a456"}`,
		`{"type":"player_join","pin":"-23456"}`,
	}
	for _, c := range cases {
		if _, ok := DecodeFrame([]byte(c)); ok {
			t.Fatalf("expected invalid pin to be rejected: %s", c)
		}
	}
}

func TestDecodeFrameOmittedPinIsAllowed(t *testing.T) {
	msg, ok := DecodeFrame([]byte(`{"type":"start_game"}`))
	if !ok {
		t.Fatalf("a frame with no pin field must still decode")
	}
	if msg.Type != TypeStartGame {
		t.Fatalf("unexpected type: %s", msg.Type)
	}
}

func TestValidPin(t *testing.T) {
	good := []string{"000000", "123456", "999999"}
	for _, p := range good {
		if !ValidPin(p) {
			t.Fatalf("expected %q to be a valid pin", p)
		}
	}

	bad := []string{"", "12345", "1234567", "abcdef", " 12345", "12345 "}
	for _, p := range bad {
		if ValidPin(p) {
			t.Fatalf("expected %q to be an invalid pin", p)
		}
	}
}

func TestDecodeFrameAnswerPayloadPreserved(t *testing.T) {
	msg, ok := DecodeFrame([]byte(`{"type":"answer","answer":[0,2],"final":true}`))
	if !ok {
		t.Fatalf("expected valid frame to decode")
	}
	if msg.Final == nil || !*msg.Final {
		t.Fatalf("expected final=true, got %+v", msg.Final)
	}
	if string(msg.Answer) != "[0,2]" {
		t.Fatalf("unexpected raw answer payload: %s", msg.Answer)
	}
}

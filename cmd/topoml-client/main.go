package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/fractalmind-ai/topoml/pkg/protocol"
	"github.com/gorilla/websocket"
)

func main() {
	url := flag.String("url", "ws://127.0.0.1:18790/ws", "websocket server URL")
	action := flag.String("action", string(protocol.ActionTokenize), "tokenize, detokenize, one_hot, vocabulary or echo")
	maxLength := flag.Int("max-length", 0, "one-hot rows per text; 0 uses the longest text")
	timeout := flag.Duration("timeout", 5*time.Second, "response timeout")
	flag.Parse()

	req, err := buildRequest(protocol.Action(*action), flag.Args(), *maxLength)
	if err != nil {
		log.Fatalf("Invalid request: %v", err)
	}

	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		log.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(req); err != nil {
		log.Fatalf("Write failed: %v", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(*timeout))

	var resp protocol.Message
	if err := conn.ReadJSON(&resp); err != nil {
		log.Fatalf("Read failed: %v", err)
	}

	payload, err := json.Marshal(resp)
	if err != nil {
		log.Fatalf("Marshal failed: %v", err)
	}

	fmt.Println(string(payload))
	if resp.Error != "" {
		os.Exit(1)
	}
}

// buildRequest turns positional args into a request. detokenize takes one
// JSON array of code sequences.
func buildRequest(action protocol.Action, args []string, maxLength int) (*protocol.Message, error) {
	msg := &protocol.Message{
		Kind:   protocol.MessageKindCodec,
		Action: action,
		ID:     strconv.FormatInt(time.Now().UnixNano(), 10),
	}

	switch action {
	case protocol.ActionTokenize:
		msg.Data = protocol.TokenizeRequest{Texts: args}
	case protocol.ActionOneHot:
		msg.Data = protocol.OneHotRequest{Texts: args, MaxLength: maxLength}
	case protocol.ActionDetokenize:
		if len(args) != 1 {
			return nil, fmt.Errorf("detokenize takes one JSON argument, e.g. '[[1,2,3]]'")
		}
		var seqs [][]int
		if err := json.Unmarshal([]byte(args[0]), &seqs); err != nil {
			return nil, fmt.Errorf("failed to parse sequences: %w", err)
		}
		msg.Data = protocol.DetokenizeRequest{Sequences: seqs}
	case protocol.ActionVocabulary:
	case protocol.ActionEcho:
		msg.Kind = protocol.MessageKindEvent
		msg.Data = map[string]interface{}{"args": args}
	default:
		return nil, fmt.Errorf("unknown action %q", action)
	}
	return msg, nil
}

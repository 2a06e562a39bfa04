package gateway

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/fractalmind-ai/topoml/internal/codec"
	"github.com/fractalmind-ai/topoml/pkg/protocol"
	"github.com/gorilla/websocket"
)

// wordIndexer is implemented by tokenizers that can list their vocabulary.
type wordIndexer interface {
	WordIndex() map[string]int
}

// Client represents a connected WebSocket client
type Client struct {
	ID        string
	Conn      *websocket.Conn
	Server    *Server
	sendLock  sync.Mutex
	closeOnce sync.Once
	closeChan chan struct{}
}

// NewClient creates a new client
func NewClient(id string, conn *websocket.Conn, server *Server) *Client {
	return &Client{
		ID:        id,
		Conn:      conn,
		Server:    server,
		closeChan: make(chan struct{}),
	}
}

// Handle processes incoming messages from client
func (c *Client) Handle() {
	defer c.Close()

	for {
		select {
		case <-c.closeChan:
			return

		default:
			var msg protocol.Message
			if err := c.Conn.ReadJSON(&msg); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Printf("WebSocket error [%s]: %v", c.ID, err)
				}
				return
			}

			c.ProcessMessage(&msg)
		}
	}
}

func (c *Client) keepAlive() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.closeChan:
			return
		case <-ticker.C:
			c.sendLock.Lock()
			err := c.Conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			c.sendLock.Unlock()
			if err != nil {
				c.Close()
				return
			}
		}
	}
}

// ProcessMessage handles incoming message based on type
func (c *Client) ProcessMessage(msg *protocol.Message) {
	if msg == nil {
		return
	}

	switch msg.Kind {
	case protocol.MessageKindCodec:
		c.handleCodecMessage(msg)
	case protocol.MessageKindEvent:
		c.handleEventMessage(msg)
	default:
		log.Printf("Unknown message kind: %s", msg.Kind)
		c.reply(msg, nil, "unknown message kind: "+string(msg.Kind))
	}
}

// handleEventMessage processes event messages.
func (c *Client) handleEventMessage(msg *protocol.Message) {
	switch msg.Action {
	case protocol.ActionEcho:
		c.reply(msg, msg.Data, "")
	default:
		log.Printf("Unknown event action: %s", msg.Action)
		c.reply(msg, nil, "unknown event action: "+string(msg.Action))
	}
}

// handleCodecMessage runs a codec operation and replies with its result or error.
func (c *Client) handleCodecMessage(msg *protocol.Message) {
	data, err := c.runCodec(msg)
	if err != nil {
		c.reply(msg, nil, err.Error())
		return
	}
	c.reply(msg, data, "")
}

func (c *Client) runCodec(msg *protocol.Message) (interface{}, error) {
	tok := c.Server.tokenizer

	switch msg.Action {
	case protocol.ActionTokenize:
		var req protocol.TokenizeRequest
		if err := protocol.DecodeData(msg, &req); err != nil {
			return nil, err
		}
		seqs, err := tok.Tokenize(req.Texts)
		if err != nil {
			return nil, err
		}
		return protocol.TokenizeResult{Sequences: seqs}, nil

	case protocol.ActionDetokenize:
		var req protocol.DetokenizeRequest
		if err := protocol.DecodeData(msg, &req); err != nil {
			return nil, err
		}
		texts, err := tok.Detokenize(req.Sequences)
		if err != nil {
			return nil, err
		}
		return protocol.DetokenizeResult{Texts: texts}, nil

	case protocol.ActionOneHot:
		var req protocol.OneHotRequest
		if err := protocol.DecodeData(msg, &req); err != nil {
			return nil, err
		}
		maxLength := req.MaxLength
		if maxLength == 0 {
			maxLength = codec.MaxLength(req.Texts)
		}
		if err := checkOneHotCells(len(req.Texts), maxLength, tok.VocabSize()+1, c.Server.config.OneHotCellLimit()); err != nil {
			return nil, err
		}
		matrices, err := tok.OneHot(req.Texts, maxLength)
		if err != nil {
			return nil, err
		}
		return protocol.OneHotResult{
			Shape:    []int{len(req.Texts), maxLength, tok.VocabSize() + 1},
			Matrices: matrices,
		}, nil

	case protocol.ActionVocabulary:
		res := protocol.VocabularyResult{
			Size:  tok.VocabSize(),
			Width: tok.VocabSize() + 1,
		}
		if wi, ok := tok.(wordIndexer); ok {
			res.WordIndex = wi.WordIndex()
		}
		return res, nil

	default:
		log.Printf("Unknown codec action: %s", msg.Action)
		return nil, fmt.Errorf("unknown codec action: %s", msg.Action)
	}
}

// checkOneHotCells rejects one_hot requests whose texts x rows x width
// exceeds limit. Negative lengths are left to the codec.
func checkOneHotCells(texts, maxLength, width, limit int) error {
	if texts == 0 || maxLength <= 0 {
		return nil
	}
	perText := limit / width
	if maxLength > perText || texts > perText/maxLength {
		return fmt.Errorf("one_hot request of %d texts x %d rows x %d columns exceeds the limit of %d cells", texts, maxLength, width, limit)
	}
	return nil
}

func (c *Client) reply(req *protocol.Message, data interface{}, errMsg string) {
	resp := protocol.Message{
		Kind:   req.Kind,
		Action: req.Action,
		ID:     req.ID,
		Data:   data,
		Error:  errMsg,
	}
	if err := c.Send(&resp); err != nil {
		log.Printf("Send error [%s]: %v", c.ID, err)
	}
}

// Send sends a message to client
func (c *Client) Send(msg *protocol.Message) error {
	c.sendLock.Lock()
	defer c.sendLock.Unlock()

	_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.Conn.WriteJSON(msg)
}

// Close closes the client connection
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.closeChan)
		c.Conn.Close()
		if c.Server != nil {
			c.Server.removeClient(c)
		}
		log.Printf("🔌 Client disconnected: %s", c.ID)
	})
}

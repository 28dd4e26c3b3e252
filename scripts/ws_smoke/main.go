package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/vovakirdan/chatrelay/internal/proto"
)

type frame struct {
	Type      string `json:"type"`
	Code      string `json:"code"`
	Message   string `json:"message"`
	Sender    string `json:"sender"`
	Room      string `json:"room"`
	Timestamp string `json:"timestamp"`
}

func main() {
	if err := run(); err != nil {
		log.Printf("ws_smoke: %v", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "ws://localhost:8080/ws", "WebSocket address")
	user := flag.String("user", "tester", "username")
	password := flag.String("password", "tester123", "password")
	register := flag.Bool("register", true, "register instead of login")
	text := flag.String("text", "hello from smoke test", "message text to send")
	timeout := flag.Duration("timeout", 5*time.Second, "total timeout for the run")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, *addr, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	action := proto.AuthActionLogin
	if *register {
		action = proto.AuthActionRegister
	}
	if err := wsjson.Write(ctx, conn, proto.Inbound{
		Type: proto.InboundTypeAuth, Action: action, Username: *user, Password: *password,
	}); err != nil {
		return fmt.Errorf("send auth: %w", err)
	}

	sent := false
	for {
		var f frame
		if err := wsjson.Read(ctx, conn, &f); err != nil {
			return fmt.Errorf("read: %w", err)
		}
		fmt.Printf("Received: type=%s\n", f.Type)

		switch f.Type {
		case proto.OutboundTypeError:
			return fmt.Errorf("server error %s: %s", f.Code, f.Message)
		case proto.OutboundTypeRoomList:
			if sent {
				continue
			}
			sent = true
			if err := wsjson.Write(ctx, conn, proto.Inbound{Type: proto.InboundTypeChat, Message: *text}); err != nil {
				return fmt.Errorf("send chat: %w", err)
			}
		case proto.OutboundTypeChat:
			fmt.Printf("[%s] [%s] %s: %s\n", f.Timestamp, f.Room, f.Sender, f.Message)
			if f.Sender == *user && f.Message == *text {
				return wsjson.Write(ctx, conn, proto.Inbound{Type: proto.InboundTypeBye})
			}
		}
	}
}

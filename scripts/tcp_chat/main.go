package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/vovakirdan/chatrelay/internal/proto"
)

type frame struct {
	Type      string              `json:"type"`
	Username  string              `json:"username"`
	Code      string              `json:"code"`
	Message   string              `json:"message"`
	Sender    string              `json:"sender"`
	Recipient string              `json:"recipient"`
	Room      string              `json:"room"`
	Timestamp string              `json:"timestamp"`
	Filename  string              `json:"filename"`
	Caption   string              `json:"caption"`
	Creator   string              `json:"creator"`
	IsAdmin   bool                `json:"is_admin"`
	Users     []string            `json:"users"`
	Rooms     []proto.RoomSummary `json:"rooms"`
	History   []proto.HistoryItem `json:"history"`
}

func main() {
	if err := run(); err != nil {
		log.Printf("tcp_chat: %v", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "localhost:5555", "chat server address")
	user := flag.String("user", "", "username")
	password := flag.String("password", "", "password")
	register := flag.Bool("register", false, "register a new account")
	flag.Parse()

	if *user == "" || *password == "" {
		return fmt.Errorf("-user and -password are required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, err := net.Dial("tcp", *addr)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	enc := json.NewEncoder(conn)
	action := proto.AuthActionLogin
	if *register {
		action = proto.AuthActionRegister
	}
	if err := enc.Encode(proto.Inbound{
		Type: proto.InboundTypeAuth, Action: action, Username: *user, Password: *password,
	}); err != nil {
		return fmt.Errorf("send auth: %w", err)
	}

	fmt.Printf("Connected to %s as %s\n", *addr, *user)
	fmt.Println("Type messages and press Enter. Commands: /join room [password], /create room [password],")
	fmt.Println("/leave, /pm user text, /users [room], /rooms, /history [room] [n], /kick user,")
	fmt.Println("/rename new, /password new, /delete, /quit")

	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		readLoop(conn)
	}()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			_ = enc.Encode(proto.Inbound{Type: proto.InboundTypeBye})
			return nil
		case <-readDone:
			return nil
		case line, ok := <-lines:
			if !ok {
				_ = enc.Encode(proto.Inbound{Type: proto.InboundTypeBye})
				return nil
			}
			in, quit := parseLine(strings.TrimSpace(line))
			if in == nil {
				continue
			}
			if err := enc.Encode(in); err != nil {
				return fmt.Errorf("send: %w", err)
			}
			if quit {
				<-readDone
				return nil
			}
		}
	}
}

// parseLine turns one line of input into a frame. quit reports /quit.
func parseLine(line string) (in *proto.Inbound, quit bool) {
	if line == "" {
		return nil, false
	}
	if !strings.HasPrefix(line, "/") {
		return &proto.Inbound{Type: proto.InboundTypeChat, Message: line}, false
	}

	fields := strings.Fields(line)
	arg := func(i int) string {
		if i < len(fields) {
			return fields[i]
		}
		return ""
	}

	switch fields[0] {
	case "/join":
		return &proto.Inbound{Type: proto.InboundTypeJoinRoom, Room: arg(1), Password: arg(2)}, false
	case "/create":
		return &proto.Inbound{Type: proto.InboundTypeCreateRoom, Room: arg(1), Password: arg(2)}, false
	case "/leave":
		return &proto.Inbound{Type: proto.InboundTypeLeaveRoom}, false
	case "/pm":
		parts := strings.SplitN(line, " ", 3)
		if len(parts) < 3 {
			fmt.Println("usage: /pm user text")
			return nil, false
		}
		return &proto.Inbound{Type: proto.InboundTypePrivate, To: parts[1], Message: parts[2]}, false
	case "/users":
		return &proto.Inbound{Type: proto.InboundTypeListUsers, Room: arg(1)}, false
	case "/rooms":
		return &proto.Inbound{Type: proto.InboundTypeListRooms}, false
	case "/history":
		limit, _ := strconv.Atoi(arg(2))
		return &proto.Inbound{Type: proto.InboundTypeGetHistory, Room: arg(1), Limit: limit}, false
	case "/kick":
		return &proto.Inbound{Type: proto.InboundTypeKick, Target: arg(1)}, false
	case "/rename":
		return &proto.Inbound{Type: proto.InboundTypeRenameRoom, NewName: arg(1)}, false
	case "/password":
		return &proto.Inbound{Type: proto.InboundTypeChangePassword, NewPassword: arg(1)}, false
	case "/delete":
		return &proto.Inbound{Type: proto.InboundTypeDeleteRoom}, false
	case "/quit":
		return &proto.Inbound{Type: proto.InboundTypeBye}, true
	default:
		fmt.Printf("unknown command %s\n", fields[0])
		return nil, false
	}
}

func readLoop(conn net.Conn) {
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 4<<20)
	for scanner.Scan() {
		var f frame
		if err := json.Unmarshal(scanner.Bytes(), &f); err != nil {
			log.Printf("bad frame: %v", err)
			continue
		}
		render(&f)
	}
}

func render(f *frame) {
	switch f.Type {
	case proto.OutboundTypeAuthOK:
		fmt.Printf("* logged in as %s\n", f.Username)
	case proto.OutboundTypeError:
		fmt.Printf("! %s (%s)\n", f.Message, f.Code)
	case proto.OutboundTypeChat:
		fmt.Printf("[%s] [%s] %s: %s\n", f.Timestamp, f.Room, f.Sender, f.Message)
	case proto.OutboundTypePrivate:
		fmt.Printf("[%s] (pm %s -> %s) %s\n", f.Timestamp, f.Sender, f.Recipient, f.Message)
	case proto.OutboundTypeImage:
		fmt.Printf("[%s] [%s] %s sent image %s %s\n", f.Timestamp, f.Room, f.Sender, f.Filename, f.Caption)
	case proto.OutboundTypeUserList:
		if f.Room != "" {
			fmt.Printf("* in %s: %s\n", f.Room, strings.Join(f.Users, ", "))
		} else {
			fmt.Printf("* online: %s\n", strings.Join(f.Users, ", "))
		}
	case proto.OutboundTypeRoomList:
		names := make([]string, 0, len(f.Rooms))
		for _, r := range f.Rooms {
			name := fmt.Sprintf("%s(%d)", r.Name, r.MemberCount)
			if r.IsPrivate {
				name += "*"
			}
			names = append(names, name)
		}
		fmt.Printf("* rooms: %s\n", strings.Join(names, " "))
	case proto.OutboundTypeRoomJoined:
		role := ""
		if f.IsAdmin {
			role = " (admin)"
		}
		fmt.Printf("* now in %s%s\n", f.Room, role)
	case proto.OutboundTypeHistory:
		for _, h := range f.History {
			fmt.Printf("  [%s] %s: %s\n", h.Timestamp, h.Username, h.Message)
		}
	case proto.OutboundTypeAdminKicked:
		fmt.Printf("! %s\n", f.Message)
	default:
		fmt.Printf("? %s\n", f.Type)
	}
}

// wsclient 是手工联调聊天网关的小工具：签发开发用 token，连接 /ws/chat 并打印收到的帧。
package main

import (
	"encoding/json"
	"errors"
	"flag"
	"log"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/joho/godotenv"

	"github.com/zhouzirui/chat-gateway/backend/internal/config"
	"github.com/zhouzirui/chat-gateway/backend/internal/model/protocol"
	"github.com/zhouzirui/chat-gateway/backend/internal/service/auth"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	if err := godotenv.Load(); err != nil {
		log.Printf("[WARN] 无法加载 .env，改用系统环境变量: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("配置加载失败: %v", err)
	}

	addr := flag.String("addr", defaultAddr(cfg.Server.Addr), "网关 WebSocket 地址")
	username := flag.String("user", "", "签发 token 使用的用户名")
	carrier := flag.String("carrier", "payload", "token 携带方式: payload, query, header, cookie, subprotocol")
	message := flag.String("message", "", "认证后发送的消息，留空则只认证")
	conversation := flag.String("conversation", "", "可选的会话 ID")
	ttl := flag.Duration("ttl", time.Hour, "token 有效期 (负数可模拟过期)")
	wait := flag.Duration("wait", 30*time.Second, "等待服务端帧的时间")

	flag.Parse()

	if *username == "" {
		flag.Usage()
		log.Fatal("请通过 -user 指定用户名")
	}

	token, err := mintToken(cfg.Auth, *username, *ttl)
	if err != nil {
		log.Fatalf("签发 token 失败: %v", err)
	}

	target, err := url.Parse(*addr)
	if err != nil {
		log.Fatalf("地址无效: %v", err)
	}

	header := http.Header{}
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	frame := protocol.Inbound{ConversationID: *conversation}
	if *message != "" {
		frame.Message = message
	}

	switch *carrier {
	case "payload":
		frame.Token = &token
	case "query":
		q := target.Query()
		q.Set("token", token)
		target.RawQuery = q.Encode()
	case "header":
		header.Set("Authorization", "JWT "+token)
	case "cookie":
		header.Set("Cookie", "token="+token)
	case "subprotocol":
		dialer.Subprotocols = []string{"auth.token." + token}
	default:
		log.Fatalf("未知的 carrier: %s", *carrier)
	}

	conn, resp, err := dialer.Dial(target.String(), header)
	if err != nil {
		if resp != nil {
			log.Fatalf("连接失败: %v (status=%d)", err, resp.StatusCode)
		}
		log.Fatalf("连接失败: %v", err)
	}
	defer conn.Close()

	log.Printf("已连接 %s carrier=%s user=%s", target.Redacted(), *carrier, *username)

	if frame.Token != nil || frame.Message != nil {
		if err := conn.WriteJSON(frame); err != nil {
			log.Fatalf("发送帧失败: %v", err)
		}
	}

	deadline := time.Now().Add(*wait)
	for {
		conn.SetReadDeadline(deadline)
		var payload json.RawMessage
		if err := conn.ReadJSON(&payload); err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				log.Println("等待结束")
				return
			}
			log.Printf("连接关闭: %v", err)
			return
		}
		log.Printf("<- %s", payload)
	}
}

func defaultAddr(listen string) string {
	host := listen
	if strings.HasPrefix(listen, ":") {
		host = "localhost" + listen
	}
	return "ws://" + host + "/ws/chat"
}

// mintToken 使用 HS* 密钥签发开发 token；非对称算法需要私钥，工具不支持。
func mintToken(cfg config.AuthConfig, username string, ttl time.Duration) (string, error) {
	method, ok := jwt.GetSigningMethod(cfg.Algorithm).(*jwt.SigningMethodHMAC)
	if !ok {
		return "", errors.New("wsclient 只支持 HS256/HS384/HS512")
	}

	now := time.Now()
	claims := auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Username: username,
	}
	return jwt.NewWithClaims(method, claims).SignedString([]byte(cfg.Secret))
}

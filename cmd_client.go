package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"PPClient/global/config"
	"PPClient/logger"
	"PPClient/module/chat/model"
	"PPClient/module/messenger"
	"PPClient/module/session"
	"PPClient/service/api"
	"PPClient/service/hint"
	"PPClient/service/querycache"
	"PPClient/tools"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Request a development token from the devapi server",
	RunE:  runLogin,
}

var conversationsCmd = &cobra.Command{
	Use:   "conversations",
	Short: "List conversations, most recent first",
	Args:  cobra.NoArgs,
	RunE:  runConversations,
}

var threadCmd = &cobra.Command{
	Use:   "thread [otherUserId]",
	Short: "Print the message thread with another user",
	Args:  cobra.ExactArgs(1),
	RunE:  runThread,
}

var sendCmd = &cobra.Command{
	Use:   "send [otherUserId] [content...]",
	Short: "Send a text message",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runSend,
}

var likeCmd = &cobra.Command{
	Use:   "like [otherUserId]",
	Short: "Send a like",
	Args:  cobra.ExactArgs(1),
	RunE:  runLike,
}

var watchCmd = &cobra.Command{
	Use:   "watch [otherUserId]",
	Short: "Follow a thread; stdin lines are sent, /f refreshes, /like sends a like",
	Long: `Keeps the thread and the conversation list in the cache and prints them
whenever they change. Polling follows the cache config; hint listeners are
started when hint.websocket or hint.nats is enabled.`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

var (
	loginUserID   int64
	loginUsername string
	loginPicture  string
)

func init() {
	loginCmd.Flags().Int64Var(&loginUserID, "user-id", 0, "user id")
	loginCmd.Flags().StringVar(&loginUsername, "username", "", "display name")
	loginCmd.Flags().StringVar(&loginPicture, "picture", "", "profile picture url")
	_ = loginCmd.MarkFlagRequired("user-id")

	rootCmd.AddCommand(loginCmd, conversationsCmd, threadCmd, sendCmd, likeCmd, watchCmd)
}

func apiConfig() api.Config {
	c := config.Client
	return api.Config{BaseURL: c.BaseURL, Timeout: c.Timeout, Headers: c.Headers}
}

func messengerOptions() messenger.Options {
	cc := config.Client.Cache
	return messenger.Options{
		ConversationStaleTime:    cc.ConversationStaleTime,
		ConversationPollInterval: cc.ConversationPollInterval,
		ThreadStaleTime:          cc.ThreadStaleTime,
		ThreadPollInterval:       cc.ThreadPollInterval,
		Retry:                    cc.Retry,
		RetryDelay:               cc.RetryDelay,
	}
}

// newMessenger 会话来自令牌；polling 为 false 时关闭轮询（一次性命令）
func newMessenger(polling bool, extra ...messenger.Option) (*messenger.Messenger, error) {
	sess, err := session.FromToken(config.Client.Token)
	if err != nil {
		return nil, err
	}
	opts := []messenger.Option{
		messenger.WithOptions(messengerOptions()),
		messenger.WithLogger(logger.Named("messenger")),
	}
	if !polling {
		opts = append(opts, messenger.WithPollIntervals(0, 0))
	}
	opts = append(opts, extra...)
	return messenger.New(api.New(apiConfig(), sess), sess, opts...)
}

func parseUserID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid user id %q", s)
	}
	return id, nil
}

func runLogin(cmd *cobra.Command, args []string) error {
	res, err := api.IssueToken(cmd.Context(), apiConfig(), model.TokenRequest{
		UserID:         loginUserID,
		Username:       loginUsername,
		ProfilePicture: loginPicture,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "token expires at %s; export PPCHAT_TOKEN to use it\n", res.ExpireAt.Format(time.RFC3339))
	fmt.Println(res.Token)
	return nil
}

func runConversations(cmd *cobra.Command, args []string) error {
	m, err := newMessenger(false)
	if err != nil {
		return err
	}
	defer m.Close()
	list, err := m.Conversations().Conversations(cmd.Context())
	if err != nil {
		return err
	}
	printConversations(list)
	return nil
}

func runThread(cmd *cobra.Command, args []string) error {
	other, err := parseUserID(args[0])
	if err != nil {
		return err
	}
	m, err := newMessenger(false)
	if err != nil {
		return err
	}
	defer m.Close()
	list, err := m.Thread(other).Messages(cmd.Context())
	if err != nil {
		return err
	}
	printThread(os.Stdout, m.Session().UserID, list)
	return nil
}

func runSend(cmd *cobra.Command, args []string) error {
	other, err := parseUserID(args[0])
	if err != nil {
		return err
	}
	m, err := newMessenger(false)
	if err != nil {
		return err
	}
	defer m.Close()
	res, err := m.Send(cmd.Context(), other, strings.Join(args[1:], " "))
	if err != nil {
		return err
	}
	printSendResult(res)
	return nil
}

func runLike(cmd *cobra.Command, args []string) error {
	other, err := parseUserID(args[0])
	if err != nil {
		return err
	}
	m, err := newMessenger(false)
	if err != nil {
		return err
	}
	defer m.Close()
	res, err := m.Like(cmd.Context(), other)
	if err != nil {
		return err
	}
	printSendResult(res)
	return nil
}

func runWatch(cmd *cobra.Command, args []string) error {
	other, err := parseUserID(args[0])
	if err != nil {
		return err
	}
	m, err := newMessenger(true, messenger.WithNotifier(func(e *messenger.SendError) {
		fmt.Fprintf(os.Stderr, "! send failed, not delivered: %q (%v)\n", e.Content, e.Err)
	}))
	if err != nil {
		return err
	}
	defer m.Close()

	ctx, cancel := signalContext()
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	if err := startHintListeners(gctx, g, m); err != nil {
		return err
	}

	me := m.Session().UserID
	th := m.Thread(other)
	unsubThread := th.Subscribe(threadWatcher(os.Stdout, os.Stderr, me))
	defer unsubThread()
	unsubConvs := m.Conversations().Subscribe(conversationsWatcher(os.Stdout, os.Stderr, m.Conversations().UnreadTotal))
	defer unsubConvs()

	lines := make(chan string)
	go func() {
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			lines <- sc.Text()
		}
		close(lines)
	}()

	for {
		select {
		case <-gctx.Done():
			cancel()
			return ignoreCanceled(g.Wait())
		case line, ok := <-lines:
			if !ok {
				cancel()
				return ignoreCanceled(g.Wait())
			}
			handleWatchLine(gctx, m, other, strings.TrimSpace(line))
		}
	}
}

func handleWatchLine(ctx context.Context, m *messenger.Messenger, other int64, line string) {
	switch line {
	case "":
	case "/f", "f":
		m.Focus()
	case "/like":
		if _, err := m.Like(ctx, other); err != nil {
			logger.Debug("like", zap.Error(err))
		}
	default:
		if _, err := m.Send(ctx, other, line); err != nil {
			logger.Debug("send", zap.Error(err))
		}
	}
}

// startHintListeners 按配置启动 WebSocket / NATS 提示监听
func startHintListeners(ctx context.Context, g *errgroup.Group, m *messenger.Messenger) error {
	hc := config.Client.Hint
	if hc.WebSocket {
		u, err := hint.WSURL(config.Client.BaseURL)
		if err != nil {
			return err
		}
		l := hint.NewWSListener(u, m.Session().Token, m)
		g.Go(func() error { return l.Run(ctx) })
	}
	if hc.NATS {
		l, err := hint.NewNatsListener(hc.Nats, tools.ParseMode(hc.NatsMode), m.Session().UserID, m)
		if err != nil {
			return err
		}
		if err := l.Start(); err != nil {
			_ = l.Close()
			return err
		}
		g.Go(func() error {
			<-ctx.Done()
			return l.Close()
		})
	}
	return nil
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func printConversations(list []model.Conversation) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "USER\tNAME\tUNREAD\tLAST\tAT")
	for _, c := range list {
		fmt.Fprintf(w, "%d\t%s\t%d\t%s\t%s\n", c.OtherUserID, c.OtherUsername, c.Unread(),
			preview(c.LastMessage), c.LastMessageTime.Local().Format("01-02 15:04"))
	}
	_ = w.Flush()
}

func threadWatcher(out, errOut io.Writer, me int64) func(querycache.State[[]model.Message]) {
	return func(st querycache.State[[]model.Message]) {
		if st.Err != nil {
			fmt.Fprintf(errOut, "! %v\n", st.Err)
			return
		}
		if st.HasData {
			printThread(out, me, st.Data)
		}
	}
}

// conversationsWatcher 会话列表刷新失败也要打出来，否则 watch 下看不到
func conversationsWatcher(out, errOut io.Writer, unread func() int) func(querycache.State[[]model.Conversation]) {
	return func(st querycache.State[[]model.Conversation]) {
		if st.Err != nil {
			fmt.Fprintf(errOut, "! conversations: %v\n", st.Err)
			return
		}
		if st.HasData {
			fmt.Fprintf(out, "-- %d unread across %d conversations\n", unread(), len(st.Data))
		}
	}
}

func printThread(w io.Writer, me int64, list []model.Message) {
	for _, msg := range list {
		who := msg.SenderUsername
		if msg.SenderID == me {
			who = "me"
		}
		if who == "" {
			who = strconv.FormatInt(msg.SenderID, 10)
		}
		mark := ""
		if msg.Pending {
			mark = " (sending)"
		}
		fmt.Fprintf(w, "[%s] %s: %s%s\n", msg.CreatedAt.Local().Format("15:04:05"), who, msg.Content, mark)
	}
}

func printSendResult(res *model.SendResult) {
	if res != nil && res.MessageID != nil {
		fmt.Printf("sent #%s\n", res.MessageID.String())
		return
	}
	fmt.Println("sent")
}

func preview(s string) string {
	r := []rune(s)
	if len(r) > 40 {
		return string(r[:40]) + "…"
	}
	return s
}

package devapi

import (
	"errors"
	"net/http"
	"strconv"

	"PPClient/global"
	"PPClient/module/chat/model"
	"PPClient/service/storage"
	"PPClient/tools/errs"
	jwtlib "PPClient/tools/security"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// fail 按错误码映射 HTTP 状态，响应体统一为 {success:false, message}
func (s *Server) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, errs.ErrArgs), errors.Is(err, errs.ErrEmptyContent):
		status = http.StatusBadRequest
	case errors.Is(err, errs.ErrUnauthorized):
		status = http.StatusUnauthorized
	case errors.Is(err, errs.ErrNotFound):
		status = http.StatusNotFound
	}
	if status == http.StatusInternalServerError {
		s.log.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.JSON(status, global.Fail(err.Error()))
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, global.Ok(gin.H{"online": s.hub.Online()}))
}

func (s *Server) issueToken(c *gin.Context) {
	var req model.TokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, errs.ErrArgs.WrapMsg("bad body", "err", err))
		return
	}
	if req.UserID <= 0 {
		s.fail(c, errs.ErrArgs.WrapMsg("userId required"))
		return
	}
	ctx := c.Request.Context()
	if err := s.store.UpsertUser(ctx, storage.User{ID: req.UserID, Username: req.Username, ProfilePicture: req.ProfilePicture}); err != nil {
		s.fail(c, err)
		return
	}
	token, exp, err := jwtlib.Generate(s.jwt, jwtlib.Identity{
		UserID:         req.UserID,
		Username:       req.Username,
		ProfilePicture: req.ProfilePicture,
	}, nil)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, global.Ok(model.TokenResult{Token: token, ExpireAt: exp}))
}

func (s *Server) listConversations(c *gin.Context) {
	uid, _ := global.UserID(c)
	list, err := s.store.ListConversations(c.Request.Context(), uid)
	if err != nil {
		s.fail(c, err)
		return
	}
	if list == nil {
		list = []model.Conversation{}
	}
	c.JSON(http.StatusOK, global.Ok(list))
}

// getThread 返回整段对话，并把该会话标记为已读
func (s *Server) getThread(c *gin.Context) {
	uid, _ := global.UserID(c)
	other, err := strconv.ParseInt(c.Param("otherUserId"), 10, 64)
	if err != nil || other <= 0 {
		s.fail(c, errs.ErrArgs.WrapMsg("bad otherUserId", "value", c.Param("otherUserId")))
		return
	}
	ctx := c.Request.Context()
	list, err := s.store.ListThread(ctx, uid, other)
	if err != nil {
		s.fail(c, err)
		return
	}
	if err := s.store.MarkRead(ctx, uid, other); err != nil {
		s.log.Warn("mark read", zap.Int64("user", uid), zap.Int64("other", other), zap.Error(err))
	}
	if list == nil {
		list = []model.Message{}
	}
	c.JSON(http.StatusOK, global.Ok(list))
}

func (s *Server) sendMessage(c *gin.Context) {
	uid, _ := global.UserID(c)
	var req model.SendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, errs.ErrArgs.WrapMsg("bad body", "err", err))
		return
	}
	ctx := c.Request.Context()
	msg, err := s.store.AppendMessage(ctx, uid, req.ReceiverID, req.Content, s.now())
	if err != nil {
		s.fail(c, err)
		return
	}
	s.events.MessageStored(ctx, msg, req.ReceiverID)
	id := msg.ID
	c.JSON(http.StatusOK, global.Ok(model.SendResult{MessageID: &id}))
}

package http

import (
	"net/http"
	"strconv"

	"loanledger/internal/adapter/middleware"
	"loanledger/internal/domain/apperr"
	"loanledger/internal/engine/notify"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	wsinfra "loanledger/internal/infrastructure/notify"
)

// NotificationHandler serves the /notifications routes and the live
// websocket stream, delegating persistence and fan-out to notify.Hub.
type NotificationHandler struct {
	hub *notify.Hub
	ws  *wsinfra.WSHub
}

func NewNotificationHandler(hub *notify.Hub, ws *wsinfra.WSHub) *NotificationHandler {
	return &NotificationHandler{hub: hub, ws: ws}
}

func pageParams(c echo.Context) (limit, offset int) {
	limit, offset = 20, 0
	if v := c.QueryParam("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if v := c.QueryParam("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}
	return limit, offset
}

// List returns the authenticated account's notification feed, newest first.
func (h *NotificationHandler) List(c echo.Context) error {
	claims := middleware.Claims(c)
	limit, offset := pageParams(c)
	feed, err := h.hub.ListFeed(c.Request().Context(), claims.AccountID, limit, offset)
	if err != nil {
		return fail(c, apperr.Wrap(apperr.KindInternal, "list notifications", err))
	}
	return ok(c, http.StatusOK, "notifications retrieved", feed)
}

// UnreadCount returns how many of the account's notifications are unread.
func (h *NotificationHandler) UnreadCount(c echo.Context) error {
	claims := middleware.Claims(c)
	n, err := h.hub.CountUnread(c.Request().Context(), claims.AccountID)
	if err != nil {
		return fail(c, apperr.Wrap(apperr.KindInternal, "count unread", err))
	}
	return ok(c, http.StatusOK, "unread count retrieved", map[string]int64{"unread": n})
}

// MarkRead marks a single notification read.
func (h *NotificationHandler) MarkRead(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return fail(c, apperr.New(apperr.KindValidation, "invalid notification id"))
	}
	claims := middleware.Claims(c)
	if err := h.hub.MarkRead(c.Request().Context(), id, claims.AccountID); err != nil {
		return fail(c, apperr.Wrap(apperr.KindInternal, "mark read", err))
	}
	_ = h.ws.PushEvent(claims.AccountID, "notification:read", map[string]uint64{"id": id})
	return ok(c, http.StatusOK, "notification marked read", nil)
}

// MarkAllRead marks every notification of the account read.
func (h *NotificationHandler) MarkAllRead(c echo.Context) error {
	claims := middleware.Claims(c)
	if err := h.hub.MarkAllRead(c.Request().Context(), claims.AccountID); err != nil {
		return fail(c, apperr.Wrap(apperr.KindInternal, "mark all read", err))
	}
	_ = h.ws.PushEvent(claims.AccountID, "notifications:all-read", nil)
	return ok(c, http.StatusOK, "all notifications marked read", nil)
}

// Stream upgrades the connection to a websocket and subscribes the account
// for live push delivery. The read loop only waits
// for the client-initiated close; the server never expects inbound frames
// beyond pings.
func (h *NotificationHandler) Stream(c echo.Context) error {
	claims := middleware.Claims(c)
	subID, conn, err := h.ws.Subscribe(c.Response().Writer, c.Request(), claims.AccountID)
	if err != nil {
		return fail(c, apperr.Wrap(apperr.KindInternal, "upgrade websocket", err))
	}
	unsubscribe, err := h.hub.Subscribe(c.Request().Context(), claims.AccountID)
	if err != nil {
		h.ws.Unsubscribe(claims.AccountID, subID)
		return fail(c, apperr.Wrap(apperr.KindInternal, "subscribe", err))
	}
	defer func() {
		h.ws.Unsubscribe(claims.AccountID, subID)
		// Presence only drops once the account's last subscription is gone.
		if h.ws.SubscriptionCount(claims.AccountID) == 0 {
			unsubscribe()
		}
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				return err
			}
			return nil
		}
	}
}

package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/chatcluster/chat/internal/chat"
	"github.com/chatcluster/chat/internal/chatdb"
	"github.com/chatcluster/chat/internal/logging"
)

// Notifier is the slice of the Hub the HTTP handlers need to push
// WebSocket frames for state changes that originate over REST (inviting a
// member, accepting an invitation, and so on).
type Notifier interface {
	NotifyUser(ctx context.Context, userID string, frame chat.OutboundFrame, senderID string)
	BroadcastToRoom(ctx context.Context, roomID string, frame chat.OutboundFrame, senderID string)
}

// Handlers implements the HTTP control plane described in the external
// interfaces section: room, message, and invitation CRUD plus the pieces
// of presence that need to be visible over REST (member list, unread
// count).
type Handlers struct {
	store *chatdb.Store
	hub   Notifier
}

// NewHandlers wires the HTTP control plane to its dependencies.
func NewHandlers(store *chatdb.Store, hub Notifier) *Handlers {
	return &Handlers{store: store, hub: hub}
}

func userID(c *gin.Context) string {
	v, _ := c.Get("user_id")
	s, _ := v.(string)
	return s
}

func fail(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{"error": message})
}

type createRoomRequest struct {
	Name      string   `json:"name"`
	MemberIDs []string `json:"member_ids"`
}

// CreateRoom creates a group room and invites the given members. A request
// with exactly one member and no name is treated as a direct-room request
// for symmetry with POST /api/rooms/direct, but callers SHOULD use that
// endpoint instead for its explicit find-or-create semantics.
func (h *Handlers) CreateRoom(c *gin.Context) {
	uid := userID(c)
	var req createRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" && len(req.MemberIDs) == 1 {
		ctx := c.Request.Context()
		room, err := h.store.Rooms.FindDirectRoom(ctx, uid, req.MemberIDs[0])
		if errors.Is(err, chatdb.ErrNotFound) {
			room, err = h.store.Rooms.CreateDirectRoom(ctx, uid, req.MemberIDs[0])
		}
		if err != nil {
			logging.Error(ctx, "find or create direct room failed", zap.Error(err))
			fail(c, http.StatusInternalServerError, "failed to create room")
			return
		}
		c.JSON(http.StatusOK, toRoomDTO(room))
		return
	}
	if req.Name == "" {
		fail(c, http.StatusBadRequest, "name is required")
		return
	}

	ctx := c.Request.Context()
	room, err := h.store.Rooms.CreateGroup(ctx, req.Name, uid)
	if err != nil {
		logging.Error(ctx, "create group room failed", zap.Error(err))
		fail(c, http.StatusInternalServerError, "failed to create room")
		return
	}

	if err := h.store.Rooms.AddMember(ctx, room.ID, uid, chatdb.RoleAdmin); err != nil {
		logging.Error(ctx, "add creator as admin failed", zap.Error(err))
		fail(c, http.StatusInternalServerError, "failed to create room")
		return
	}

	for _, memberID := range req.MemberIDs {
		if memberID == uid {
			continue
		}
		inv, err := h.store.Invitations.Create(ctx, room.ID, memberID, uid)
		if err != nil {
			logging.Error(ctx, "create invitation failed", zap.Error(err), zap.String("invitee", memberID))
			continue
		}
		h.hub.NotifyUser(ctx, memberID, chat.OutboundFrame{
			Type: chat.OutInvitationReceived, InvitationID: strconv.FormatInt(inv.ID, 10),
			RoomID: room.ID, RoomName: room.Name, InvitedBy: uid,
		}, uid)
	}

	c.JSON(http.StatusCreated, toRoomDTO(room))
}

type directRoomRequest struct {
	OtherUserID string `json:"other_user_id"`
}

// CreateDirectRoom is find-or-create: calling it twice for the same pair
// always returns the same room id.
func (h *Handlers) CreateDirectRoom(c *gin.Context) {
	uid := userID(c)
	var req directRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.OtherUserID == "" {
		fail(c, http.StatusBadRequest, "other_user_id is required")
		return
	}

	ctx := c.Request.Context()
	room, err := h.store.Rooms.FindDirectRoom(ctx, uid, req.OtherUserID)
	if err != nil && !errors.Is(err, chatdb.ErrNotFound) {
		logging.Error(ctx, "find direct room failed", zap.Error(err))
		fail(c, http.StatusInternalServerError, "failed to look up room")
		return
	}
	if room == nil {
		room, err = h.store.Rooms.CreateDirectRoom(ctx, uid, req.OtherUserID)
		if err != nil {
			logging.Error(ctx, "create direct room failed", zap.Error(err))
			fail(c, http.StatusInternalServerError, "failed to create room")
			return
		}
	}

	c.JSON(http.StatusOK, toRoomDTO(room))
}

// ListRooms returns the caller's visible rooms with per-room unread counts.
func (h *Handlers) ListRooms(c *gin.Context) {
	uid := userID(c)
	ctx := c.Request.Context()

	summaries, err := h.store.Rooms.GetUserRooms(ctx, uid)
	if err != nil {
		logging.Error(ctx, "list rooms failed", zap.Error(err))
		fail(c, http.StatusInternalServerError, "failed to list rooms")
		return
	}

	dtos := make([]roomDTO, 0, len(summaries))
	for _, s := range summaries {
		unread, err := h.store.Rooms.UnreadCount(ctx, s.ID, uid)
		if err != nil {
			logging.Error(ctx, "unread count failed", zap.Error(err), zap.String("room_id", s.ID))
		}
		dtos = append(dtos, toRoomSummaryDTO(s, unread))
	}

	c.JSON(http.StatusOK, gin.H{"rooms": dtos})
}

// GetRoom returns room detail including the member list, 403 if the
// caller is not a member.
func (h *Handlers) GetRoom(c *gin.Context) {
	uid := userID(c)
	roomID := c.Param("id")
	ctx := c.Request.Context()

	member, err := h.store.Rooms.IsMember(ctx, roomID, uid)
	if err != nil {
		logging.Error(ctx, "membership check failed", zap.Error(err))
		fail(c, http.StatusInternalServerError, "failed to verify membership")
		return
	}
	if !member {
		fail(c, http.StatusForbidden, "not a member of this room")
		return
	}

	room, err := h.store.Rooms.GetByID(ctx, roomID)
	if err != nil {
		if errors.Is(err, chatdb.ErrNotFound) {
			fail(c, http.StatusNotFound, "room not found")
			return
		}
		logging.Error(ctx, "get room failed", zap.Error(err))
		fail(c, http.StatusInternalServerError, "failed to load room")
		return
	}

	members, err := h.store.Rooms.RoomMembersWithUsers(ctx, roomID, h.store.DisplayNameAndEmail)
	if err != nil {
		logging.Error(ctx, "load room members failed", zap.Error(err))
		fail(c, http.StatusInternalServerError, "failed to load room members")
		return
	}

	dto := toRoomDTO(room)
	dto.Members = toMemberDTOs(members)
	c.JSON(http.StatusOK, dto)
}

// ListMessages pages a room's message history, most recent first.
func (h *Handlers) ListMessages(c *gin.Context) {
	uid := userID(c)
	roomID := c.Param("id")
	ctx := c.Request.Context()

	member, err := h.store.Rooms.IsMember(ctx, roomID, uid)
	if err != nil || !member {
		fail(c, http.StatusForbidden, "not a member of this room")
		return
	}

	limit, _ := strconv.Atoi(c.Query("limit"))
	beforeID := c.Query("before_id")

	messages, err := h.store.Messages.ListByRoom(ctx, roomID, limit, beforeID)
	if err != nil {
		logging.Error(ctx, "list messages failed", zap.Error(err))
		fail(c, http.StatusInternalServerError, "failed to load messages")
		return
	}

	dtos := make([]messageDTO, 0, len(messages))
	for _, m := range messages {
		dtos = append(dtos, toMessageDTO(m))
	}
	c.JSON(http.StatusOK, gin.H{"messages": dtos})
}

// LeaveRoom soft-leaves a group room, rejecting the request if the caller
// is the only active admin while other members remain.
func (h *Handlers) LeaveRoom(c *gin.Context) {
	uid := userID(c)
	roomID := c.Param("id")
	ctx := c.Request.Context()

	member, err := h.store.Rooms.IsMember(ctx, roomID, uid)
	if err != nil || !member {
		fail(c, http.StatusForbidden, "not a member of this room")
		return
	}

	adminCount, err := h.store.Rooms.ActiveAdminCount(ctx, roomID)
	if err != nil {
		logging.Error(ctx, "admin count failed", zap.Error(err))
		fail(c, http.StatusInternalServerError, "failed to verify room admins")
		return
	}
	memberCount, err := h.store.Rooms.ActiveMemberCount(ctx, roomID)
	if err != nil {
		logging.Error(ctx, "member count failed", zap.Error(err))
		fail(c, http.StatusInternalServerError, "failed to verify room membership")
		return
	}

	role, err := h.store.Rooms.MemberRole(ctx, roomID, uid)
	if err != nil {
		logging.Error(ctx, "member role lookup failed", zap.Error(err))
		fail(c, http.StatusInternalServerError, "failed to verify role")
		return
	}
	if role == chatdb.RoleAdmin && adminCount == 1 && memberCount > 1 {
		fail(c, http.StatusBadRequest, "cannot leave: you are the last admin")
		return
	}

	if err := h.store.Rooms.LeaveRoom(ctx, roomID, uid); err != nil {
		logging.Error(ctx, "leave room failed", zap.Error(err))
		fail(c, http.StatusInternalServerError, "failed to leave room")
		return
	}

	c.Status(http.StatusNoContent)
}

// HideRoom soft-hides the room for the caller until the next message.
func (h *Handlers) HideRoom(c *gin.Context) {
	uid := userID(c)
	roomID := c.Param("id")
	ctx := c.Request.Context()

	if err := h.store.Rooms.HideRoom(ctx, roomID, uid); err != nil {
		logging.Error(ctx, "hide room failed", zap.Error(err))
		fail(c, http.StatusInternalServerError, "failed to hide room")
		return
	}
	c.Status(http.StatusNoContent)
}

// MarkRoomRead advances the caller's last_read_at.
func (h *Handlers) MarkRoomRead(c *gin.Context) {
	uid := userID(c)
	roomID := c.Param("id")
	ctx := c.Request.Context()

	if err := h.store.Rooms.MarkRoomAsRead(ctx, roomID, uid); err != nil {
		logging.Error(ctx, "mark room read failed", zap.Error(err))
		fail(c, http.StatusInternalServerError, "failed to mark room read")
		return
	}
	c.Status(http.StatusNoContent)
}

// ListInvitations returns the caller's pending invitations.
func (h *Handlers) ListInvitations(c *gin.Context) {
	uid := userID(c)
	ctx := c.Request.Context()

	invitations, err := h.store.Invitations.ListPending(ctx, uid)
	if err != nil {
		logging.Error(ctx, "list invitations failed", zap.Error(err))
		fail(c, http.StatusInternalServerError, "failed to list invitations")
		return
	}

	dtos := make([]invitationDTO, 0, len(invitations))
	for _, inv := range invitations {
		dtos = append(dtos, toInvitationDTO(inv))
	}
	c.JSON(http.StatusOK, gin.H{"invitations": dtos})
}

func parseInvitationID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		fail(c, http.StatusBadRequest, "invalid invitation id")
		return 0, false
	}
	return id, true
}

// AcceptInvitation adds the caller as a member and broadcasts a
// member_joined frame and a system join message to the room's other
// members; nothing is sent to the inviter alone.
func (h *Handlers) AcceptInvitation(c *gin.Context) {
	uid := userID(c)
	id, ok := parseInvitationID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	inv, err := h.store.Invitations.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, chatdb.ErrNotFound) {
			fail(c, http.StatusNotFound, "invitation not found")
			return
		}
		logging.Error(ctx, "get invitation failed", zap.Error(err))
		fail(c, http.StatusInternalServerError, "failed to load invitation")
		return
	}
	if inv.UserID != uid {
		fail(c, http.StatusForbidden, "not your invitation")
		return
	}
	if inv.Status != chatdb.InvitationPending {
		fail(c, http.StatusBadRequest, "invitation already resolved")
		return
	}

	if err := h.store.Rooms.AddMember(ctx, inv.RoomID, uid, chatdb.RoleMember); err != nil {
		logging.Error(ctx, "add member on accept failed", zap.Error(err))
		fail(c, http.StatusInternalServerError, "failed to accept invitation")
		return
	}
	if err := h.store.Invitations.SetStatus(ctx, id, chatdb.InvitationAccepted); err != nil {
		logging.Error(ctx, "set invitation accepted failed", zap.Error(err))
	}

	displayName, err := h.store.UserDisplayName(ctx, uid)
	if err != nil {
		logging.Warn(ctx, "resolve invitee display name failed", zap.Error(err))
		displayName = uid
	}

	now := time.Now()
	systemContent := displayName + " đã tham gia nhóm"
	if _, err := h.store.Messages.InsertSystem(ctx, inv.RoomID, systemContent, now); err != nil {
		logging.Error(ctx, "insert system join message failed", zap.Error(err))
	}

	h.hub.BroadcastToRoom(ctx, inv.RoomID, chat.OutboundFrame{
		Type: chat.OutMemberJoined, RoomID: inv.RoomID, UserID: uid, UserName: displayName,
	}, uid)
	h.hub.BroadcastToRoom(ctx, inv.RoomID, chat.OutboundFrame{
		Type: chat.OutMessage, RoomID: inv.RoomID, SenderID: "0", SenderName: "system",
		Content: systemContent, MessageType: "system", CreatedAt: now.UTC().Format(time.RFC3339),
	}, uid)

	room, err := h.store.Rooms.GetByID(ctx, inv.RoomID)
	if err != nil {
		fail(c, http.StatusInternalServerError, "failed to load room")
		return
	}
	c.JSON(http.StatusOK, toRoomDTO(room))
}

// DeclineInvitation marks an invitation declined without mutating room
// membership.
func (h *Handlers) DeclineInvitation(c *gin.Context) {
	uid := userID(c)
	id, ok := parseInvitationID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	inv, err := h.store.Invitations.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, chatdb.ErrNotFound) {
			fail(c, http.StatusNotFound, "invitation not found")
			return
		}
		fail(c, http.StatusInternalServerError, "failed to load invitation")
		return
	}
	if inv.UserID != uid {
		fail(c, http.StatusForbidden, "not your invitation")
		return
	}
	if inv.Status != chatdb.InvitationPending {
		fail(c, http.StatusBadRequest, "invitation already resolved")
		return
	}

	if err := h.store.Invitations.SetStatus(ctx, id, chatdb.InvitationDeclined); err != nil {
		logging.Error(ctx, "decline invitation failed", zap.Error(err))
		fail(c, http.StatusInternalServerError, "failed to decline invitation")
		return
	}
	c.Status(http.StatusNoContent)
}

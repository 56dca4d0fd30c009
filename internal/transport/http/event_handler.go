package httptransport

import (
	"github.com/gin-gonic/gin"

	"ecphub/backend/internal/service"
)

// EventHandler 事件查询与录入处理器
type EventHandler struct {
	events *service.EventService
}

// NewEventHandler 创建事件处理器
func NewEventHandler(events *service.EventService) *EventHandler {
	return &EventHandler{events: events}
}

// ListEvents godoc
// @Summary 事件列表
// @Description 按日期、创建时间升序返回全部事件
// @Tags Events
// @Produce json
// @Success 200 {object} object{success=bool,items=[]domain.EventView}
// @Failure 500 {object} object{success=bool,detail=string}
// @Router /events [get]
func (h *EventHandler) ListEvents(c *gin.Context) {
	items, err := h.events.List(c.Request.Context())
	if err != nil {
		InternalError(c, err)
		return
	}
	Success(c, gin.H{"items": items})
}

// CreateEvent godoc
// @Summary 录入事件
// @Tags Events
// @Accept json
// @Produce json
// @Param body body service.CreateEventInput true "事件"
// @Success 200 {object} object{success=bool,saved=int}
// @Failure 422 {object} object{success=bool,detail=string}
// @Failure 500 {object} object{success=bool,detail=string}
// @Router /events [post]
func (h *EventHandler) CreateEvent(c *gin.Context) {
	var req service.CreateEventInput
	if err := c.ShouldBindJSON(&req); err != nil {
		UnprocessableEntity(c, err)
		return
	}

	saved, err := h.events.Create(c.Request.Context(), req)
	if err != nil {
		ServiceError(c, err)
		return
	}
	Success(c, gin.H{"saved": saved})
}

package httptransport

import (
	"github.com/gin-gonic/gin"

	"ecphub/backend/internal/service"
)

// IntakeHandler 邮件摄取相关处理器
type IntakeHandler struct {
	intake *service.IntakeService
}

// NewIntakeHandler 创建摄取处理器
func NewIntakeHandler(intake *service.IntakeService) *IntakeHandler {
	return &IntakeHandler{intake: intake}
}

// Auth godoc
// @Summary 凭证自检
// @Description 使用当前邮箱凭证读取一次账户资料
// @Tags Intake
// @Produce json
// @Success 200 {object} object{success=bool,emailAddress=string}
// @Failure 500 {object} object{success=bool,detail=string}
// @Router /auth [post]
func (h *IntakeHandler) Auth(c *gin.Context) {
	address, err := h.intake.Authenticate(c.Request.Context())
	if err != nil {
		InternalError(c, err)
		return
	}
	Success(c, gin.H{"emailAddress": address})
}

// ListUnreadWithAttachments godoc
// @Summary 未读带附件邮件
// @Description 列出标签下未读且带附件的邮件摘要
// @Tags Intake
// @Produce json
// @Param label query string false "标签名称"
// @Success 200 {object} object{success=bool,count=int,items=[]domain.MessageSummary}
// @Failure 500 {object} object{success=bool,detail=string}
// @Router /emails/unread-with-attachments [get]
func (h *IntakeHandler) ListUnreadWithAttachments(c *gin.Context) {
	items, err := h.intake.ScanUnread(c.Request.Context(), c.Query("label"))
	if err != nil {
		InternalError(c, err)
		return
	}
	Success(c, gin.H{"count": len(items), "items": items})
}

// ParseLatestSchedule godoc
// @Summary 解析最新排班
// @Description 取最新一封候选邮件的第一个附件，抽取事件并入库
// @Tags Intake
// @Produce json
// @Param label query string false "标签名称"
// @Success 200 {object} object{success=bool,items=[]object,saved=int}
// @Failure 500 {object} object{success=bool,detail=string}
// @Router /parse-latest-schedule [post]
func (h *IntakeHandler) ParseLatestSchedule(c *gin.Context) {
	res, err := h.intake.ParseLatest(c.Request.Context(), c.Query("label"))
	if err != nil {
		InternalError(c, err)
		return
	}
	Success(c, gin.H{
		"items":            res.Items,
		"saved":            res.Saved,
		"message_id":       res.MessageID,
		"filename":         res.Filename,
		"parse_stage":      res.Stage,
		"marked_processed": res.Marked,
	})
}

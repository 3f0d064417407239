package ports

import (
	"github.com/gin-gonic/gin"
)

type HTTPHandler interface {
	StartStream(c *gin.Context)
	StopStream(c *gin.Context)
	StreamStatus(c *gin.Context)
	CurrentFrame(c *gin.Context)
	LiveStream(c *gin.Context)
	StartRecording(c *gin.Context)
	StopRecording(c *gin.Context)
	ListRecordings(c *gin.Context)
}

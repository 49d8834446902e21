package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/murmurlink-project/murmurlink/internal/client"
	"github.com/murmurlink-project/murmurlink/internal/util"
)

// handlePing returns a simple health check response.
func (s *Server) handlePing(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "murmurlink",
	})
}

// handleStatus returns the connection lifecycle flags and transport health.
func (s *Server) handleStatus(c *gin.Context) {
	info := s.voice.GetConnectionInfo()
	stats := s.voice.GetStats()
	sysInfo := util.GetSystemInfo()

	resp := gin.H{
		"address":       info.Address,
		"username":      info.Username,
		"is_connecting": info.IsConnecting,
		"is_connected":  info.IsConnected,
		"transport":     stats,
		"platform":      sysInfo.Platform,
		"hostname":      sysInfo.Hostname,
	}

	if cpu, err := util.GetCPUUsage(); err == nil {
		resp["cpu_percent"] = cpu
	}
	if mem, err := util.GetMemoryUsage(); err == nil {
		resp["memory"] = mem
	}

	c.JSON(http.StatusOK, resp)
}

// handleChannels lists the channels known to the state store.
func (s *Server) handleChannels(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"channels": s.voice.GetChannels()})
}

// handleUsers lists the users known to the state store.
func (s *Server) handleUsers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"users": s.voice.GetUsers()})
}

// handleTalkers lists everyone currently talking.
func (s *Server) handleTalkers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"talkers": s.voice.GetTalkers()})
}

// handleHistory returns the persisted connection history.
func (s *Server) handleHistory(c *gin.Context) {
	if s.database == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "database disabled"})
		return
	}

	records, err := s.database.ConnectionHistory(25)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"history": records})
}

// handleSetChannel updates the desired channel.
func (s *Server) handleSetChannel(c *gin.Context) {
	var req struct {
		Name string `json:"name" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s.voice.SetChannel(req.Name)
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handleListen mutates the desired listen-channel set.
func (s *Server) handleListen(c *gin.Context) {
	var req struct {
		Add    []string `json:"add"`
		Remove []string `json:"remove"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	for _, name := range req.Add {
		s.voice.AddListenChannel(name)
	}
	for _, name := range req.Remove {
		s.voice.RemoveListenChannel(name)
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handleVoiceTarget queues a voice-target rebuild and optionally selects
// it for outgoing voice.
func (s *Server) handleVoiceTarget(c *gin.Context) {
	var req struct {
		ID       uint8    `json:"id" binding:"required"`
		Users    []string `json:"users"`
		Channels []string `json:"channels"`
		Select   bool     `json:"select"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s.voice.UpdateVoiceTarget(req.ID, client.VoiceTargetConfig{
		Users:    req.Users,
		Channels: req.Channels,
	})
	if req.Select {
		s.voice.SetVoiceTarget(req.ID)
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handleVolumeOverride adjusts and persists a per-user playback volume.
func (s *Server) handleVolumeOverride(c *gin.Context) {
	var req struct {
		Name   string  `json:"name" binding:"required"`
		Volume float32 `json:"volume"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s.voice.SetClientVolumeOverride(req.Name, req.Volume)

	if s.database != nil {
		if err := s.database.SetVolumeOverride(req.Name, req.Volume); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

package controllers

import (
	"github.com/gin-gonic/gin"

	"github.com/rakage/Chat-Bridge-sub000/config"
	"github.com/rakage/Chat-Bridge-sub000/engine"
	"github.com/rakage/Chat-Bridge-sub000/locks"
)

var (
	conf      config.Configuration
	credStore *engine.CredentialStore
	lockReg   *locks.Registry
)

// Setup wires the package-level dependencies before routes are registered.
func Setup(c config.Configuration, store *engine.CredentialStore, registry *locks.Registry) {
	conf = c
	credStore = store
	lockReg = registry
}

func RespondError(c *gin.Context, msg string, code int) {
	c.JSON(code, gin.H{"error": msg})
}

func RespondSuccess(c *gin.Context, payload any) {
	c.JSON(200, payload)
}

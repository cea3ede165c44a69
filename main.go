package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"genesis/internal/config"
	"genesis/internal/jobs"
	"genesis/internal/model"
	"genesis/internal/notify"
	"genesis/internal/repo"
	"genesis/internal/rooms"
	"genesis/internal/store"
	"genesis/internal/tools"
	"genesis/internal/volc"
)

func main() {
	// 初始化日志
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	logrus.SetLevel(logrus.InfoLevel)

	cfg := config.Load()
	ctx := context.Background()

	// 图数据库是唯一的硬依赖，其余外部服务缺失时走降级路径
	heroRepo, err := repo.NewHeroRepository(ctx, cfg)
	if err != nil {
		logrus.Fatalf("连接Neo4j失败: %v", err)
	}
	defer heroRepo.Close(ctx)

	mediaStore, err := store.NewMediaStore(ctx, cfg)
	if err != nil {
		logrus.Fatalf("初始化媒体存储失败: %v", err)
	}
	defer mediaStore.Close()

	notifier := notify.NewNotifier(cfg)
	defer notifier.Close()

	// 模型客户端：未配置凭证时保持nil，各阶段自行降级
	var scriptModel rooms.ScriptModel
	if cm, err := volc.NewChatModel(ctx, cfg); err != nil {
		logrus.Warnf("叙事模型不可用，使用降级剧本: %v", err)
	} else {
		scriptModel = cm
	}

	var imageModel rooms.ImageModel
	var videoModel rooms.VideoModel
	if cfg.ArkAPIKey != "" || cfg.ArkMock {
		ark := volc.NewArkClient(cfg)
		imageModel = ark
		videoModel = ark
	} else {
		logrus.Warn("Ark未配置，画面使用占位图，视频使用离线合成")
	}

	// 初始化三个制作阶段
	writersRoom := rooms.NewWritersRoom(scriptModel)
	artDepartment := rooms.NewArtDepartment(imageModel, mediaStore)
	studio := rooms.NewStudio(videoModel, mediaStore)

	// 初始化任务
	generator := jobs.NewEpisodeGenerator(heroRepo, writersRoom, artDepartment, studio, notifier, cfg.DefaultStylePreset)
	canonUpdater := jobs.NewCanonUpdater(heroRepo, toDescriptionModel(scriptModel))

	// 初始化工具
	scriptTool := tools.NewScriptTool(writersRoom)

	// 初始化Gin路由
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()

	state := &jobState{}
	jobRoutes := router.Group("/jobs", requireSchedulerHeader(cfg.Environment))
	jobRoutes.POST("/generate-episodes", handleGenerateEpisodes(generator, state, cfg.BatchSize))
	jobRoutes.POST("/generate-episode/:hero_id", handleGenerateEpisodeForHero(generator))
	jobRoutes.POST("/update-canon", handleUpdateCanon(canonUpdater, state))
	router.GET("/jobs/status", handleJobStatus(state, cfg.Environment))
	router.POST("/heroes/:hero_id/character-sheet", handleCharacterSheet(heroRepo, artDepartment))
	router.POST("/tools/script-generate", handleScriptGenerate(scriptTool))

	// 启动服务器
	srv := &http.Server{
		Addr:    ":8080",
		Handler: router,
	}

	go func() {
		logrus.Info("服务器启动在 :8080")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("启动服务器失败: %v", err)
		}
	}()

	// 等待中断信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logrus.Info("关闭服务器...")

	if err := srv.Close(); err != nil {
		logrus.Fatalf("服务器关闭失败: %v", err)
	}
	logrus.Info("服务器已关闭")
}

// toDescriptionModel 接口适配，保持nil语义
func toDescriptionModel(m rooms.ScriptModel) jobs.DescriptionModel {
	if m == nil {
		return nil
	}
	return m
}

// jobState 记录后台任务的运行状态和最近一次结果
type jobState struct {
	mu           sync.Mutex
	batchRunning bool
	canonRunning bool
	lastBatch    *model.RunStats
	lastCanon    *model.CanonUpdateStats
}

// handleGenerateEpisodes 触发一轮批量生成，立即返回202，结果通过/jobs/status查询
func handleGenerateEpisodes(generator *jobs.EpisodeGenerator, state *jobState, defaultBatchSize int) gin.HandlerFunc {
	return func(c *gin.Context) {
		batchSize := defaultBatchSize
		if raw := c.Query("batch_size"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed <= 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "batch_size必须为正整数"})
				return
			}
			batchSize = parsed
		}

		state.mu.Lock()
		if state.batchRunning {
			state.mu.Unlock()
			c.JSON(http.StatusConflict, gin.H{"error": "批量生成任务已在运行"})
			return
		}
		state.batchRunning = true
		state.mu.Unlock()

		go func() {
			stats := generator.RunBatch(context.Background(), batchSize)
			state.mu.Lock()
			state.batchRunning = false
			state.lastBatch = stats
			state.mu.Unlock()
		}()

		c.JSON(http.StatusAccepted, gin.H{"status": "started", "batch_size": batchSize})
	}
}

// handleGenerateEpisodeForHero 同步为单个英雄生成一集
func handleGenerateEpisodeForHero(generator *jobs.EpisodeGenerator) gin.HandlerFunc {
	return func(c *gin.Context) {
		heroID := c.Param("hero_id")
		episode, err := generator.RunForHero(c.Request.Context(), heroID)
		if err != nil {
			if errors.Is(err, repo.ErrHeroNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("英雄不存在: %s", heroID)})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("生成单集失败: %v", err)})
			return
		}
		c.JSON(http.StatusOK, episode)
	}
}

// handleUpdateCanon 触发一轮正史更新
func handleUpdateCanon(updater *jobs.CanonUpdater, state *jobState) gin.HandlerFunc {
	return func(c *gin.Context) {
		state.mu.Lock()
		if state.canonRunning {
			state.mu.Unlock()
			c.JSON(http.StatusConflict, gin.H{"error": "正史更新任务已在运行"})
			return
		}
		state.canonRunning = true
		state.mu.Unlock()

		go func() {
			stats := updater.Run(context.Background())
			state.mu.Lock()
			state.canonRunning = false
			state.lastCanon = stats
			state.mu.Unlock()
		}()

		c.JSON(http.StatusAccepted, gin.H{"status": "started"})
	}
}

// requireSchedulerHeader 生产环境只接受带调度器头的任务触发请求
func requireSchedulerHeader(environment string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if environment == "production" && c.GetHeader("X-CloudScheduler") == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}

// handleJobStatus 返回任务调度配置、运行状态和最近结果
func handleJobStatus(state *jobState, environment string) gin.HandlerFunc {
	return func(c *gin.Context) {
		state.mu.Lock()
		defer state.mu.Unlock()
		c.JSON(http.StatusOK, gin.H{
			"jobs": []gin.H{
				{
					"name":        "episode_generation",
					"schedule":    "0 2 * * *",
					"description": "Generate daily episodes for all active heroes",
					"endpoint":    "/jobs/generate-episodes",
					"running":     state.batchRunning,
					"last_run":    state.lastBatch,
				},
				{
					"name":        "canon_update",
					"schedule":    "0 3 * * *",
					"description": "Update canon layer with emergent events",
					"endpoint":    "/jobs/update-canon",
					"running":     state.canonRunning,
					"last_run":    state.lastCanon,
				},
			},
			"environment": environment,
		})
	}
}

// handleCharacterSheet 为英雄生成角色参考图并持久化设定表
func handleCharacterSheet(heroRepo *repo.HeroRepository, art *rooms.ArtDepartment) gin.HandlerFunc {
	return func(c *gin.Context) {
		heroID := c.Param("hero_id")
		var req struct {
			VisualDescription  string `json:"visual_description" binding:"required"`
			CostumeDescription string `json:"costume_description"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "visual_description必填"})
			return
		}

		hero, err := heroRepo.GetHero(c.Request.Context(), heroID)
		if err != nil {
			if errors.Is(err, repo.ErrHeroNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("英雄不存在: %s", heroID)})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		sheet := art.GenerateCharacterSheet(c.Request.Context(), hero, req.VisualDescription, req.CostumeDescription)
		if err := heroRepo.SaveCharacterSheet(c.Request.Context(), heroID, sheet); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("保存角色设定失败: %v", err)})
			return
		}
		c.JSON(http.StatusOK, sheet)
	}
}

// handleScriptGenerate 处理剧本生成请求
func handleScriptGenerate(scriptTool *tools.ScriptTool) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求格式"})
			return
		}

		result, err := scriptTool.InvokableRun(c.Request.Context(), string(body))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("生成剧本失败: %v", err)})
			return
		}
		c.Data(http.StatusOK, "application/json", []byte(result))
	}
}

package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"time"

	"github/itish2003/stakebot/controller"
	"github/itish2003/stakebot/services"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/slack-go/slack"
	"github.com/slack-go/slack/socketmode"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables.")
	}

	httpClient := &http.Client{
		Timeout: 30 * time.Second,
	}

	// OpenAI client for chat completions, vision and embeddings.
	llm, err := openai.New(
		openai.WithToken(requireEnv("OPENAI_API_KEY")),
		openai.WithModel(envOrDefault("CHAT_MODEL", "gpt-4o-mini")),
		openai.WithEmbeddingModel(envOrDefault("EMBEDDING_MODEL", "text-embedding-3-small")),
	)
	if err != nil {
		log.Fatalf("FATAL: Failed to create OpenAI client: %v", err)
	}
	embedder, err := embeddings.NewEmbedder(llm)
	if err != nil {
		log.Fatalf("FATAL: Failed to create embedder: %v", err)
	}
	log.Println("Successfully connected to OpenAI.")

	// File-backed vector index, reloaded lazily on first use.
	indexPath := envOrDefault("VECTOR_INDEX_PATH", "vector_index/index.gob")
	index := services.NewVectorStore(indexPath, embedder)
	chunker := services.NewChunker(services.ChunkTokenBudget, services.ChunkOverlapTokens)

	// Supabase-backed history and prompt stores.
	supabaseURL := requireEnv("SUPABASE_URL")
	supabaseKey := requireEnv("SUPABASE_KEY")
	store := services.NewSupabaseStore(httpClient, supabaseURL, supabaseKey)
	prompts := services.NewSupabasePromptStore(httpClient, supabaseURL, supabaseKey)

	chatModel := envOrDefault("CHAT_MODEL", "gpt-4o-mini")
	assembler := services.NewContextAssembler(prompts, store, index)
	classifier := services.NewQueryClassifier(llm)
	dispatcher := services.NewDispatcher(llm, chatModel, 0.4, 1000)
	assistant := services.NewAssistantService(chunker, index, assembler, classifier, dispatcher, store, prompts)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Optional local knowledge directory fed into the index.
	if knowledgeDir := os.Getenv("KNOWLEDGE_DIR"); knowledgeDir != "" {
		indexer := services.NewKnowledgeIndexer(chunker, index)
		go func() {
			indexer.ScanDirectory(ctx, knowledgeDir)
			indexer.WatchDirectory(ctx, knowledgeDir)
		}()
	}

	// Slack Socket Mode listener.
	api := slack.New(
		requireEnv("SLACK_BOT_TOKEN"),
		slack.OptionAppLevelToken(requireEnv("SLACK_APP_TOKEN")),
	)
	socketClient := socketmode.New(api)
	listener := services.NewSlackListener(api, assistant, store, chatModel)
	go func() {
		log.Println("⚡ Starting Slack Socket Mode listener...")
		if err := services.RunSocketMode(ctx, socketClient, listener); err != nil {
			log.Printf("SLACK ERROR: Socket Mode loop stopped: %v", err)
		}
	}()

	// Ops HTTP API.
	ragController := controller.NewRAGController(assistant)
	router := gin.Default()

	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "healthy",
			"service": "StakeholderBot",
		})
	})

	apiV1 := router.Group("/api/v1")
	{
		apiV1.POST("/query", ragController.Query)
		apiV1.PUT("/prompt", ragController.UpdatePrompt)
		apiV1.GET("/index/stats", ragController.IndexStats)
		apiV1.DELETE("/index", ragController.ClearIndex)
		apiV1.DELETE("/history/:user", ragController.ClearUserHistory)
		apiV1.DELETE("/history", ragController.ClearAllHistory)
	}

	port := envOrDefault("PORT", "8080")
	log.Printf("StakeholderBot ops server starting on http://localhost:%s", port)
	if err := router.Run(":" + port); err != nil {
		log.Fatalf("FATAL: Failed to start server: %v", err)
	}
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func requireEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		log.Fatalf("FATAL: %s environment variable not set", key)
	}
	return v
}

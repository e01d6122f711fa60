package model

// TurnState is the position of a session in the per-turn pipeline.
type TurnState string

const (
	StateIdle              TurnState = "idle"
	StateUserAppended      TurnState = "user_appended"
	StateRetrieving        TurnState = "retrieving"
	StatePromptBuilt       TurnState = "prompt_built"
	StateStreaming         TurnState = "streaming"
	StateAssistantAppended TurnState = "assistant_appended"

	StateEmbeddingFailed   TurnState = "embedding_failed"
	StateRetrievalFailed   TurnState = "retrieval_failed"
	StateStreamInterrupted TurnState = "stream_interrupted"
)

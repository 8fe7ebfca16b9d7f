package agent

import "errors"

var (
	// ErrTypeNotRegistered 请求的智能体类型未注册。
	ErrTypeNotRegistered = errors.New("agent type not registered")

	// ErrCheckpointDisabled 智能体运行在降级模式，无检查点存储。
	ErrCheckpointDisabled = errors.New("checkpointing disabled for this agent")

	// ErrEmptyQuery 请求的查询文本为空。
	ErrEmptyQuery = errors.New("query must not be empty")
)

package collection

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Field 表单字段
type Field string

const (
	FieldName              Field = "name"
	FieldSymbol            Field = "symbol"
	FieldCollectionAddress Field = "collectionAddress"
	FieldRecipient         Field = "recipient"
	FieldTokenURI          Field = "tokenUri"
)

// Phase 工作流阶段
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseSubmitting
	PhaseConfirming
	PhaseResolving // 仅 createCollection
	PhaseSucceeded
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseSubmitting:
		return "submitting"
	case PhaseConfirming:
		return "confirming"
	case PhaseResolving:
		return "resolving"
	case PhaseSucceeded:
		return "succeeded"
	case PhaseFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// InFlight 是否处于未结束的阶段
func (p Phase) InFlight() bool {
	return p == PhaseSubmitting || p == PhaseConfirming || p == PhaseResolving
}

// Form 用户输入
type Form struct {
	Name              string
	Symbol            string
	CollectionAddress string
	Recipient         string
	TokenURI          string
}

// CreateRequest 创建集合请求
type CreateRequest struct {
	Name   string
	Symbol string
}

// MintRequest 铸造请求，地址在提交前校验
type MintRequest struct {
	CollectionAddress string
	Recipient         string
	TokenURI          string
}

// CreateRequest 从表单提取创建请求，名称与符号按输入原样提交
func (f Form) CreateRequest() CreateRequest {
	return CreateRequest{
		Name:   f.Name,
		Symbol: f.Symbol,
	}
}

// Valid 名称与符号去除空白后均非空
func (r CreateRequest) Valid() bool {
	return strings.TrimSpace(r.Name) != "" && strings.TrimSpace(r.Symbol) != ""
}

// MintRequest 从表单提取铸造请求
func (f Form) MintRequest() MintRequest {
	return MintRequest{
		CollectionAddress: strings.TrimSpace(f.CollectionAddress),
		Recipient:         strings.TrimSpace(f.Recipient),
		TokenURI:          f.TokenURI,
	}
}

// View 展示层读取的状态快照
type View struct {
	ProviderAvailable bool
	Account           *common.Address
	Form              Form
	CreatePhase       Phase
	MintPhase         Phase
	// LastNotice 最近一次提示（"Success" 或统一失败提示）
	LastNotice string
}

// Connected 是否已连接账户
func (v View) Connected() bool {
	return v.Account != nil
}

// set 纯字段赋值；未知字段返回 false
func (f *Form) set(field Field, value string) bool {
	switch field {
	case FieldName:
		f.Name = value
	case FieldSymbol:
		f.Symbol = value
	case FieldCollectionAddress:
		f.CollectionAddress = value
	case FieldRecipient:
		f.Recipient = value
	case FieldTokenURI:
		f.TokenURI = value
	default:
		return false
	}
	return true
}

// Package collection 编排创建集合与铸造 Token 两个工作流
//
// 两个工作流形状相同：Idle → Submitting → Confirming →（仅创建：Resolving）→
// Succeeded | Failed。所有失败在本层被捕获：日志记录完整原因，
// 用户只看到统一的失败提示。终态不会自动重试，再次调用即以当前表单重新开始。
package collection

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"

	"github.com/weisyn/collection-sdk-go/client"
	"github.com/weisyn/collection-sdk-go/metrics"
	"github.com/weisyn/collection-sdk-go/services/contract"
	"github.com/weisyn/collection-sdk-go/services/registry"
	"github.com/weisyn/collection-sdk-go/services/session"
	"github.com/weisyn/collection-sdk-go/services/transaction"
	"github.com/weisyn/collection-sdk-go/types"
	"github.com/weisyn/collection-sdk-go/utils"
)

const (
	workflowCreate = "create_collection"
	workflowMint   = "mint_token"
)

// Service 工作流编排服务接口
type Service interface {
	// Init 页面加载时的检查：查询已授权账户（不弹出授权）
	Init(ctx context.Context) View

	// Connect 请求连接账户；失败只记录日志
	Connect(ctx context.Context) (common.Address, error)

	// SetField 设置表单字段
	SetField(field Field, value string) error

	// CreateCollection 以表单中的 name/symbol 创建集合
	CreateCollection(ctx context.Context) (*CreateResult, error)

	// MintToken 以表单中的 collectionAddress/recipient/tokenUri 铸造 Token
	MintToken(ctx context.Context) (*MintResult, error)

	// View 返回状态快照
	View() View
}

// Config 编排服务配置
type Config struct {
	// Ref 工厂合约；为 nil 时使用内置 ABI 与默认地址
	Ref *contract.Ref

	// Logger 日志器（可选）
	Logger client.Logger

	// Notifier 用户提示（可选）
	Notifier Notifier

	// Metrics 指标（可选）
	Metrics *metrics.Metrics

	// CrossCheckEvent 创建成功后用回执中的 CollectionCreated 事件核对注册表回查结果，
	// 不一致时仅记录警告
	CrossCheckEvent bool
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{CrossCheckEvent: true}
}

// CreateResult 创建结果
type CreateResult struct {
	RunID      string
	TxHash     common.Hash
	Collection common.Address
}

// MintResult 铸造结果
type MintResult struct {
	RunID      string
	TxHash     common.Hash
	Collection common.Address
	Recipient  common.Address
	// TokenID 取自回执中的 TokenMinted 事件，找不到时为 nil
	TokenID *big.Int
}

// collectionService 编排服务实现
type collectionService struct {
	session  session.Service
	executor transaction.Service
	registry registry.Service
	ref      *contract.Ref
	config   *Config
	notifier Notifier

	mu          sync.Mutex
	form        Form
	createPhase Phase
	mintPhase   Phase
	lastNotice  string
}

// NewService 创建编排服务
func NewService(sess session.Service, exec transaction.Service, reg registry.Service, cfg *Config) (Service, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	ref := cfg.Ref
	if ref == nil {
		var err error
		ref, err = contract.NewDefaultRef("")
		if err != nil {
			return nil, fmt.Errorf("load default contract: %w", err)
		}
	}

	notifier := cfg.Notifier
	if notifier == nil {
		notifier = nopNotifier{}
	}

	return &collectionService{
		session:  sess,
		executor: exec,
		registry: reg,
		ref:      ref,
		config:   cfg,
		notifier: notifier,
	}, nil
}

// run 单次工作流运行
type run struct {
	id       string
	workflow string
	started  time.Time
}

func newRun(workflow string) *run {
	return &run{
		id:       uuid.NewString(),
		workflow: workflow,
		started:  time.Now(),
	}
}

// Init 查询已授权账户
func (s *collectionService) Init(ctx context.Context) View {
	if account, ok := s.session.QueryExistingAuthorization(ctx); ok {
		s.logInfo("found an authorized account", "account", account.Hex())
	} else {
		s.logInfo("no authorized account found")
	}
	return s.View()
}

// Connect 请求连接账户
func (s *collectionService) Connect(ctx context.Context) (common.Address, error) {
	account, err := s.session.RequestConnection(ctx)
	if err != nil {
		s.logError("connect wallet failed", "kind", types.KindOf(err), "error", err)
		return common.Address{}, err
	}
	s.logInfo("found an account", "account", account.Hex())
	return account, nil
}

// SetField 设置表单字段
func (s *collectionService) SetField(field Field, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.form.set(field, value) {
		return types.Errorf(types.KindInvalidInput, "unknown field %q", field)
	}
	return nil
}

// CreateCollection 创建集合
func (s *collectionService) CreateCollection(ctx context.Context) (*CreateResult, error) {
	r := newRun(workflowCreate)

	// 1. 进入 Submitting 并取表单快照
	form, err := s.begin(r)
	if err != nil {
		return nil, err
	}
	req := form.CreateRequest()

	// 2. 参数验证
	if !req.Valid() {
		return nil, s.fail(r, types.Errorf(types.KindInvalidInput, "name and symbol are required"))
	}

	// 3. 提交交易
	s.logInfo("creating collection", "run", r.id, "name", req.Name, "symbol", req.Symbol)
	h, err := s.executor.Submit(ctx, s.ref, contract.MethodCreateCollection, req.Name, req.Symbol)
	if err != nil {
		return nil, s.fail(r, err)
	}

	// 4. 等待确认
	s.setPhase(r.workflow, PhaseConfirming)
	receipt, err := s.executor.AwaitConfirmation(ctx, h)
	if err != nil {
		return nil, s.fail(r, err, "hash", h.TxHash.Hex())
	}

	// 5. 回查注册表
	s.setPhase(r.workflow, PhaseResolving)
	addr, err := s.registry.ResolveLastCreated(ctx, s.ref)
	if err != nil {
		return nil, s.fail(r, err, "hash", h.TxHash.Hex())
	}
	s.crossCheck(r, receipt, addr)

	// 6. 写回表单
	s.succeed(r, func(f *Form) {
		f.CollectionAddress = addr.Hex()
		f.Name = ""
		f.Symbol = ""
	}, "hash", h.TxHash.Hex(), "collection", addr.Hex())

	return &CreateResult{
		RunID:      r.id,
		TxHash:     h.TxHash,
		Collection: addr,
	}, nil
}

// MintToken 铸造 Token
func (s *collectionService) MintToken(ctx context.Context) (*MintResult, error) {
	r := newRun(workflowMint)

	// 1. 进入 Submitting 并取表单快照
	form, err := s.begin(r)
	if err != nil {
		return nil, err
	}
	req := form.MintRequest()

	// 2. 地址校验（在提交前失败，不产生交易）
	collectionAddr, err := utils.NormalizeAddress(req.CollectionAddress)
	if err != nil {
		return nil, s.fail(r, types.NewError(types.KindInvalidAddress, "collection address", err))
	}
	recipient, err := utils.NormalizeAddress(req.Recipient)
	if err != nil {
		return nil, s.fail(r, types.NewError(types.KindInvalidAddress, "recipient", err))
	}

	// 3. 提交交易
	s.logInfo("minting token", "run", r.id, "collection", collectionAddr.Hex(), "recipient", recipient.Hex(), "tokenUri", req.TokenURI)
	h, err := s.executor.Submit(ctx, s.ref, contract.MethodMint, collectionAddr, recipient, req.TokenURI)
	if err != nil {
		return nil, s.fail(r, err)
	}

	// 4. 等待确认
	s.setPhase(r.workflow, PhaseConfirming)
	receipt, err := s.executor.AwaitConfirmation(ctx, h)
	if err != nil {
		return nil, s.fail(r, err, "hash", h.TxHash.Hex())
	}

	// 5. 清空已消费的字段
	tokenID := s.mintedTokenID(receipt)
	s.succeed(r, func(f *Form) {
		f.Recipient = ""
		f.TokenURI = ""
	}, "hash", h.TxHash.Hex(), "tokenId", tokenID)

	return &MintResult{
		RunID:      r.id,
		TxHash:     h.TxHash,
		Collection: collectionAddr,
		Recipient:  recipient,
		TokenID:    tokenID,
	}, nil
}

// View 返回状态快照
func (s *collectionService) View() View {
	st := s.session.State()

	s.mu.Lock()
	defer s.mu.Unlock()
	return View{
		ProviderAvailable: st.ProviderAvailable,
		Account:           st.Account,
		Form:              s.form,
		CreatePhase:       s.createPhase,
		MintPhase:         s.mintPhase,
		LastNotice:        s.lastNotice,
	}
}

// begin 检查同一工作流是否在进行中，并进入 Submitting
func (s *collectionService) begin(r *run) (Form, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	phase := s.phaseLocked(r.workflow)
	if phase.InFlight() {
		s.logWarn("workflow already in progress", "run", r.id, "workflow", r.workflow, "phase", phase.String())
		return Form{}, types.Errorf(types.KindWorkflowBusy, "%s is %s", r.workflow, phase)
	}
	s.setPhaseLocked(r.workflow, PhaseSubmitting)
	return s.form, nil
}

// fail 进入 Failed：表单保持不变，记录原因，提示统一失败文案
func (s *collectionService) fail(r *run, err error, args ...interface{}) error {
	s.mu.Lock()
	s.setPhaseLocked(r.workflow, PhaseFailed)
	s.lastNotice = types.GenericFailureMessage
	s.mu.Unlock()

	kind := types.KindOf(err)
	fields := append([]interface{}{"run", r.id, "workflow", r.workflow, "kind", kind, "error", err}, args...)
	s.logError("workflow failed", fields...)

	s.config.Metrics.ObserveWorkflow(r.workflow, resultLabel(kind), time.Since(r.started))
	s.notifier.Notify(types.GenericFailureMessage)
	return err
}

// succeed 进入 Succeeded 并清空已消费的字段
func (s *collectionService) succeed(r *run, consume func(*Form), args ...interface{}) {
	s.mu.Lock()
	consume(&s.form)
	s.setPhaseLocked(r.workflow, PhaseSucceeded)
	s.lastNotice = types.SuccessMessage
	s.mu.Unlock()

	fields := append([]interface{}{"run", r.id, "workflow", r.workflow}, args...)
	s.logInfo("workflow succeeded", fields...)

	s.config.Metrics.ObserveWorkflow(r.workflow, metrics.ResultSuccess, time.Since(r.started))
	s.notifier.Notify(types.SuccessMessage)
}

func (s *collectionService) setPhase(workflow string, phase Phase) {
	s.mu.Lock()
	s.setPhaseLocked(workflow, phase)
	s.mu.Unlock()
}

func (s *collectionService) setPhaseLocked(workflow string, phase Phase) {
	if workflow == workflowCreate {
		s.createPhase = phase
	} else {
		s.mintPhase = phase
	}
}

func (s *collectionService) phaseLocked(workflow string) Phase {
	if workflow == workflowCreate {
		return s.createPhase
	}
	return s.mintPhase
}

// crossCheck 核对回执事件与注册表回查结果
func (s *collectionService) crossCheck(r *run, receipt *ethtypes.Receipt, resolved common.Address) {
	if !s.config.CrossCheckEvent {
		return
	}
	created, ok := registry.CreatedInReceipt(s.ref, receipt)
	if !ok {
		s.logDebug("no CollectionCreated event in receipt", "run", r.id)
		return
	}
	if created != resolved {
		s.logWarn("registry returned a collection created by another transaction",
			"run", r.id, "resolved", resolved.Hex(), "event", created.Hex())
	}
}

func (s *collectionService) mintedTokenID(receipt *ethtypes.Receipt) *big.Int {
	if receipt == nil {
		return nil
	}
	for _, l := range receipt.Logs {
		fields, ok, err := s.ref.UnpackLog(contract.EventTokenMinted, l)
		if !ok || err != nil {
			continue
		}
		if id, isInt := fields["tokenId"].(*big.Int); isInt {
			return id
		}
	}
	return nil
}

func resultLabel(kind types.ErrorKind) string {
	if kind == "" {
		return metrics.ResultFailure
	}
	return strings.ToLower(string(kind))
}

func (s *collectionService) logDebug(msg string, args ...interface{}) {
	if s.config.Logger != nil {
		s.config.Logger.Debug(msg, args...)
	}
}

func (s *collectionService) logInfo(msg string, args ...interface{}) {
	if s.config.Logger != nil {
		s.config.Logger.Info(msg, args...)
	}
}

func (s *collectionService) logWarn(msg string, args ...interface{}) {
	if s.config.Logger != nil {
		s.config.Logger.Warn(msg, args...)
	}
}

func (s *collectionService) logError(msg string, args ...interface{}) {
	if s.config.Logger != nil {
		s.config.Logger.Error(msg, args...)
	}
}

package provider

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// ApprovalKind 授权请求类型
type ApprovalKind int

const (
	// ApproveConnect 连接账户
	ApproveConnect ApprovalKind = iota
	// ApproveTransaction 签名并发送交易
	ApproveTransaction
)

func (k ApprovalKind) String() string {
	switch k {
	case ApproveConnect:
		return "connect"
	case ApproveTransaction:
		return "transaction"
	default:
		return fmt.Sprintf("ApprovalKind(%d)", int(k))
	}
}

// ApprovalRequest 交给用户确认的请求
type ApprovalRequest struct {
	Kind    ApprovalKind
	Account common.Address
	// Tx 仅 ApproveTransaction 时有效
	Tx *TransactionArgs
}

// ApproveFunc 用户确认回调；返回 false 表示用户拒绝
type ApproveFunc func(ctx context.Context, req ApprovalRequest) (bool, error)

// AutoApprove 总是同意
func AutoApprove(context.Context, ApprovalRequest) (bool, error) {
	return true, nil
}

// PromptApprove 在终端上逐次询问用户，输入 y/yes 视为同意
func PromptApprove(in io.Reader, out io.Writer) ApproveFunc {
	reader := bufio.NewReader(in)
	return func(ctx context.Context, req ApprovalRequest) (bool, error) {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		fmt.Fprintf(out, "%s [y/N]: ", formatApproval(req))
		line, err := reader.ReadString('\n')
		if err != nil && err != io.EOF {
			return false, fmt.Errorf("read approval: %w", err)
		}
		answer := strings.ToLower(strings.TrimSpace(line))
		return answer == "y" || answer == "yes", nil
	}
}

// formatApproval 生成用于终端确认的描述
func formatApproval(req ApprovalRequest) string {
	var b strings.Builder
	switch req.Kind {
	case ApproveConnect:
		fmt.Fprintf(&b, "Connect account %s?", req.Account.Hex())
	case ApproveTransaction:
		fmt.Fprintf(&b, "Sign transaction from %s", req.Account.Hex())
		if req.Tx != nil && req.Tx.To != nil {
			fmt.Fprintf(&b, " to %s", req.Tx.To.Hex())
		}
		if req.Tx != nil && len(req.Tx.Data) >= 4 {
			fmt.Fprintf(&b, " (selector %s)", hexutil.Encode(req.Tx.Data[:4]))
		}
		b.WriteString("?")
	default:
		b.WriteString(req.Kind.String())
	}
	return b.String()
}

package client

import (
	"encoding/json"

	"github.com/weisyn/ledger-flow-go/types"
)

// rpcErrorToError 将 JSON-RPC 错误转换为 Go 错误
//
// error.data 携带 Problem Details 时返回 *types.LedgerError（保留网络状态码与交易 ID），
// 否则返回 ErrCodeRPCError 的 *Error。
func rpcErrorToError(rpcErr *RPCError) error {
	if rpcErr == nil {
		return nil
	}

	if len(rpcErr.Data) > 0 {
		var data interface{}
		if err := json.Unmarshal(rpcErr.Data, &data); err == nil {
			pd, err := types.ParseProblemDetailsFromRPCError(map[string]interface{}{
				"code":    float64(rpcErr.Code),
				"message": rpcErr.Message,
				"data":    data,
			})
			if err == nil {
				return pd.ToError()
			}
		}
	}

	return NewRPCError(rpcErr.Code, rpcErr.Message, string(rpcErr.Data))
}

// NewProblemResponse 将 LedgerError 渲染为携带 Problem Details 的错误响应
func NewProblemResponse(id uint64, err *types.LedgerError) *RPCResponse {
	return NewErrorResponse(id, RPCServerError, err.Message, err.ToProblemDetails())
}

package contracts

import (
	"context"
	"errors"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
	gethrpc "github.com/ethereum/go-ethereum/rpc"

	"presale/pkg/models"
)

const codeUserRejected = 4001

// DecodeError turns a node or signer error into a ChainCall error whose
// short message is the revert reason when one can be recovered.
func DecodeError(op string, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := models.KindOf(err); ok {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return models.NewError(models.KindChainCall, op, "Request timed out.", err)
	}
	return models.NewError(models.KindChainCall, op, shortReason(err), err)
}

func shortReason(err error) string {
	var de gethrpc.DataError
	if errors.As(err, &de) {
		if reason, ok := revertReason(de.ErrorData()); ok {
			return "execution reverted: " + reason
		}
	}
	var re gethrpc.Error
	if errors.As(err, &re) && re.ErrorCode() == codeUserRejected {
		return "User rejected the request."
	}
	if msg := err.Error(); strings.HasPrefix(msg, "execution reverted") {
		return msg
	}
	return ""
}

func revertReason(data any) (string, bool) {
	s, ok := data.(string)
	if !ok {
		return "", false
	}
	raw, err := hexutil.Decode(s)
	if err != nil {
		return "", false
	}
	reason, err := abi.UnpackRevert(raw)
	if err != nil || reason == "" {
		return "", false
	}
	return reason, true
}

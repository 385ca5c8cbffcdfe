package btcutils

import (
	"github.com/btcsuite/btcd/txscript"
	"github.com/cockroachdb/errors"
	"github.com/hertarr/ordi/common"
	"github.com/hertarr/ordi/common/errs"
)

// PkScriptToAddress returns the address paid by pkScript. Non-standard and multisig scripts return errs.Unsupported.
func PkScriptToAddress(pkScript []byte, network common.Network) (string, error) {
	_, addrs, _, err := txscript.ExtractPkScriptAddrs(pkScript, network.ChainParams())
	if err != nil {
		return "", errors.Wrap(err, "error extracting addresses from pkscript")
	}
	if len(addrs) != 1 {
		return "", errors.Wrapf(errs.Unsupported, "pkscript pays to %d addresses", len(addrs))
	}
	return addrs[0].EncodeAddress(), nil
}

package gwtypes

// HashType distinguishes how a script's code_hash is interpreted,
// mirroring the on-chain lock/type script convention: Data scripts match
// an exact cell data hash, Type scripts match a type-script hash (i.e.
// "this is a cell satisfying contract X regardless of the exact bytecode
// cell used to deploy it").
type HashType uint8

const (
	HashTypeData HashType = iota
	HashTypeType
)

// Script is an account's layer-2 identity: a (code_hash, hash_type, args)
// triple. Script hash is H(code_hash || hash_type || args) and is the
// canonical account identifier stored in the AccountSMT.
type Script struct {
	CodeHash H256
	HashType HashType
	Args     []byte
}

// Hash computes the script hash used as the account's script_hash key.
func (s Script) Hash() H256 {
	return Keccak256Hash(s.CodeHash[:], []byte{byte(s.HashType)}, s.Args)
}

// RegistryID identifies which address-mapping registry a script's address
// is routed through (e.g. the "Eth" registry maps 20-byte Ethereum
// addresses to script hashes).
type RegistryID uint32

const (
	// RegistryIDUnknown is an unset/invalid registry id.
	RegistryIDUnknown RegistryID = 0
	// RegistryIDEth is the canonical Ethereum address registry.
	RegistryIDEth RegistryID = 2
)

// RegistryAddress is the canonical external-identity form: a registry id
// plus raw address bytes (e.g. a 20-byte Ethereum address under the Eth
// registry). It is the key routed through build_sudt_key's registry half.
type RegistryAddress struct {
	RegistryID RegistryID
	Address    []byte
}

// Hash returns a deterministic key for storing this address in the
// registry column.
func (r RegistryAddress) Hash() H256 {
	var idBuf [4]byte
	idBuf[0] = byte(r.RegistryID >> 24)
	idBuf[1] = byte(r.RegistryID >> 16)
	idBuf[2] = byte(r.RegistryID >> 8)
	idBuf[3] = byte(r.RegistryID)
	return Keccak256Hash(idBuf[:], r.Address)
}

// AccountID identifies an account by its position in the account SMT.
// IDs 0..=2 are reserved for the meta/SUDT/registry contracts per the
// spec's AccountSMT invariant.
type AccountID uint32

const (
	// ReservedAccountMeta is the account id reserved for the meta contract.
	ReservedAccountMeta AccountID = 0
	// ReservedAccountSUDT is the account id reserved for the SUDT contract.
	ReservedAccountSUDT AccountID = 1
	// ReservedAccountRegistry is the account id reserved for the registry contract.
	ReservedAccountRegistry AccountID = 2
	// FirstUserAccountID is the first non-reserved account id.
	FirstUserAccountID AccountID = 3
)

// CKBSUDTScriptHash is the well-known script hash for the native capacity
// SUDT; deposits with this hash and a non-zero amount are invalid (fees
// and balances for the chain's native asset are carried via capacity,
// not an SUDT amount).
var CKBSUDTScriptHash = H256{}

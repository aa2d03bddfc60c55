package config

import (
	"fmt"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/Layr-Labs/tx-relayer-go/pkg/util"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
	"k8s.io/apimachinery/pkg/util/validation/field"
)

// Environment variable names for relayer configuration
const (
	EnvRelayerRPCURL          = "RELAYER_RPC_URL"
	EnvRelayerPrivateKey      = "RELAYER_PRIVATE_KEY"
	EnvRelayerChainID         = "RELAYER_CHAIN_ID"
	EnvRelayerSignerType      = "RELAYER_SIGNER_TYPE"
	EnvRelayerAWSKMSKeyID     = "RELAYER_AWS_KMS_KEY_ID"
	EnvRelayerAWSRegion       = "RELAYER_AWS_REGION"
	EnvRelayerRemoteSignerURL = "RELAYER_REMOTE_SIGNER_URL"
	EnvRelayerFromAddress     = "RELAYER_FROM_ADDRESS"
	EnvRelayerPolicyFile      = "RELAYER_POLICY_FILE"
	EnvRelayerPersistence     = "RELAYER_PERSISTENCE"
	EnvRelayerDataDir         = "RELAYER_DATA_DIR"
	EnvRelayerRedisAddress    = "RELAYER_REDIS_ADDRESS"
	EnvRelayerRedisPassword   = "RELAYER_REDIS_PASSWORD"
	EnvRelayerContracts       = "RELAYER_CONTRACTS"
	EnvRelayerMetricsAddr     = "RELAYER_METRICS_ADDR"
	EnvRelayerDebug           = "RELAYER_DEBUG"

	// Names used by earlier deployments, still honoured as fallbacks
	EnvLegacyWeb3Node   = "WEB3_NODE"
	EnvLegacyPrivateKey = "PRIVATE_KEY"
)

type ChainId uint

const (
	ChainId_EthereumMainnet ChainId = 1
	ChainId_EthereumSepolia ChainId = 11155111
	ChainId_EthereumHolesky ChainId = 17000
	ChainId_EthereumAnvil   ChainId = 31337
	ChainId_Simulated       ChainId = 1337
)

type ChainName string

const (
	ChainName_EthereumMainnet ChainName = "mainnet"
	ChainName_EthereumSepolia ChainName = "sepolia"
	ChainName_EthereumHolesky ChainName = "holesky"
	ChainName_EthereumAnvil   ChainName = "devnet"
	ChainName_Simulated       ChainName = "simulated"
)

var ChainIdToName = map[ChainId]ChainName{
	ChainId_EthereumMainnet: ChainName_EthereumMainnet,
	ChainId_EthereumSepolia: ChainName_EthereumSepolia,
	ChainId_EthereumHolesky: ChainName_EthereumHolesky,
	ChainId_EthereumAnvil:   ChainName_EthereumAnvil,
	ChainId_Simulated:       ChainName_Simulated,
}
var ChainNameToId = map[ChainName]ChainId{
	ChainName_EthereumMainnet: ChainId_EthereumMainnet,
	ChainName_EthereumSepolia: ChainId_EthereumSepolia,
	ChainName_EthereumHolesky: ChainId_EthereumHolesky,
	ChainName_EthereumAnvil:   ChainId_EthereumAnvil,
	ChainName_Simulated:       ChainId_Simulated,
}

// GetSupportedChainIDsString returns supported chain IDs as strings for CLI help
func GetSupportedChainIDsString() string {
	return fmt.Sprintf("%d (mainnet), %d (sepolia), %d (holesky), %d (anvil), %d (simulated)",
		ChainId_EthereumMainnet, ChainId_EthereumSepolia, ChainId_EthereumHolesky, ChainId_EthereumAnvil, ChainId_Simulated)
}

type SignerType string

const (
	SignerType_PrivateKey SignerType = "privateKey"
	SignerType_AWSKMS     SignerType = "awsKms"
	SignerType_Web3Signer SignerType = "web3signer"
)

type PersistenceType string

const (
	PersistenceType_Memory PersistenceType = "memory"
	PersistenceType_Badger PersistenceType = "badger"
	PersistenceType_Redis  PersistenceType = "redis"
)

type NonceSource string

const (
	NonceSource_Latest  NonceSource = "latest"
	NonceSource_Pending NonceSource = "pending"
)

type RetryPolicy struct {
	MaxAttempts     int           `yaml:"maxAttempts"`
	InitialBackoff  time.Duration `yaml:"initialBackoff"`
	MaxBackoff      time.Duration `yaml:"maxBackoff"`
	BackoffMultiple float64       `yaml:"backoffMultiple"`
	MaxNonceRetries int           `yaml:"maxNonceRetries"`
	MaxFeeBumps     int           `yaml:"maxFeeBumps"`
}

type FeePolicy struct {
	BumpFactor            float64         `yaml:"-"`
	BaseFeeMultiplier     int64           `yaml:"-"`
	GasLimitBufferPercent uint64          `yaml:"-"`
	FallbackTipGwei       decimal.Decimal `yaml:"-"`
	MaxFeePerGasGwei      decimal.Decimal `yaml:"-"`
}

// FallbackTipWei is used when the node cannot suggest a priority fee.
func (f *FeePolicy) FallbackTipWei() *big.Int {
	return GweiToWei(f.FallbackTipGwei)
}

// MaxFeePerGasWei returns the fee cap ceiling, nil when unbounded.
func (f *FeePolicy) MaxFeePerGasWei() *big.Int {
	if f.MaxFeePerGasGwei.IsZero() {
		return nil
	}
	return GweiToWei(f.MaxFeePerGasGwei)
}

type TimeoutPolicy struct {
	ChainQuery          time.Duration `yaml:"chainQuery"`
	FeeEstimation       time.Duration `yaml:"feeEstimation"`
	Submission          time.Duration `yaml:"submission"`
	ReceiptQuery        time.Duration `yaml:"receiptQuery"`
	ReceiptPollInterval time.Duration `yaml:"receiptPollInterval"`
	ReceiptTimeout      time.Duration `yaml:"receiptTimeout"`
}

type NoncePolicy struct {
	Source                 NonceSource   `yaml:"source"`
	CacheTTL               time.Duration `yaml:"cacheTTL"`
	ChainIDRefreshInterval time.Duration `yaml:"chainIdRefreshInterval"`
}

type RateLimitPolicy struct {
	RequestsPerSecond float64 `yaml:"requestsPerSecond"`
	Burst             int     `yaml:"burst"`
}

// RelayPolicy groups every tunable of the relay state machine.
type RelayPolicy struct {
	Retry     RetryPolicy     `yaml:"retry"`
	Fees      FeePolicy       `yaml:"-"`
	Timeouts  TimeoutPolicy   `yaml:"timeouts"`
	Nonce     NoncePolicy     `yaml:"nonce"`
	RateLimit RateLimitPolicy `yaml:"rateLimit"`
}

// DefaultRelayPolicy returns the policy used when no policy file is given.
func DefaultRelayPolicy() *RelayPolicy {
	return &RelayPolicy{
		Retry: RetryPolicy{
			MaxAttempts:     3,
			InitialBackoff:  500 * time.Millisecond,
			MaxBackoff:      10 * time.Second,
			BackoffMultiple: 2,
			MaxNonceRetries: 3,
			MaxFeeBumps:     3,
		},
		Fees: FeePolicy{
			BumpFactor:            1.125,
			BaseFeeMultiplier:     2,
			GasLimitBufferPercent: 20,
			FallbackTipGwei:       decimal.NewFromInt(1),
			MaxFeePerGasGwei:      decimal.NewFromInt(500),
		},
		Timeouts: TimeoutPolicy{
			ChainQuery:          10 * time.Second,
			FeeEstimation:       10 * time.Second,
			Submission:          15 * time.Second,
			ReceiptQuery:        10 * time.Second,
			ReceiptPollInterval: 2 * time.Second,
			ReceiptTimeout:      2 * time.Minute,
		},
		Nonce: NoncePolicy{
			Source:                 NonceSource_Latest,
			CacheTTL:               5 * time.Minute,
			ChainIDRefreshInterval: 10 * time.Minute,
		},
		RateLimit: RateLimitPolicy{
			RequestsPerSecond: 20,
			Burst:             40,
		},
	}
}

// policyFile mirrors RelayPolicy on disk; gwei amounts are decimal strings.
type policyFile struct {
	RelayPolicy `yaml:",inline"`
	Fees        struct {
		BumpFactor            *float64 `yaml:"bumpFactor"`
		BaseFeeMultiplier     *int64   `yaml:"baseFeeMultiplier"`
		GasLimitBufferPercent *uint64  `yaml:"gasLimitBufferPercent"`
		FallbackTipGwei       string   `yaml:"fallbackTipGwei"`
		MaxFeePerGasGwei      string   `yaml:"maxFeePerGasGwei"`
	} `yaml:"fees"`
}

// ParseRelayPolicy overlays a YAML document on the default policy.
func ParseRelayPolicy(data []byte) (*RelayPolicy, error) {
	pf := &policyFile{RelayPolicy: *DefaultRelayPolicy()}
	if err := yaml.Unmarshal(data, pf); err != nil {
		return nil, fmt.Errorf("failed to parse relay policy: %w", err)
	}
	policy := pf.RelayPolicy
	policy.Fees = DefaultRelayPolicy().Fees

	if pf.Fees.BumpFactor != nil {
		policy.Fees.BumpFactor = *pf.Fees.BumpFactor
	}
	if pf.Fees.BaseFeeMultiplier != nil {
		policy.Fees.BaseFeeMultiplier = *pf.Fees.BaseFeeMultiplier
	}
	if pf.Fees.GasLimitBufferPercent != nil {
		policy.Fees.GasLimitBufferPercent = *pf.Fees.GasLimitBufferPercent
	}
	if pf.Fees.FallbackTipGwei != "" {
		d, err := decimal.NewFromString(pf.Fees.FallbackTipGwei)
		if err != nil {
			return nil, fmt.Errorf("invalid fees.fallbackTipGwei %q: %w", pf.Fees.FallbackTipGwei, err)
		}
		policy.Fees.FallbackTipGwei = d
	}
	if pf.Fees.MaxFeePerGasGwei != "" {
		d, err := decimal.NewFromString(pf.Fees.MaxFeePerGasGwei)
		if err != nil {
			return nil, fmt.Errorf("invalid fees.maxFeePerGasGwei %q: %w", pf.Fees.MaxFeePerGasGwei, err)
		}
		policy.Fees.MaxFeePerGasGwei = d
	}

	if err := policy.Validate(); err != nil {
		return nil, err
	}
	return &policy, nil
}

// LoadRelayPolicy reads a policy file, or returns the defaults for an empty path.
func LoadRelayPolicy(path string) (*RelayPolicy, error) {
	if path == "" {
		return DefaultRelayPolicy(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read relay policy %s: %w", path, err)
	}
	return ParseRelayPolicy(data)
}

func (p *RelayPolicy) Validate() error {
	var allErrors field.ErrorList
	retry := field.NewPath("retry")
	if p.Retry.MaxAttempts < 1 {
		allErrors = append(allErrors, field.Invalid(retry.Child("maxAttempts"), p.Retry.MaxAttempts, "must be at least 1"))
	}
	if p.Retry.MaxNonceRetries < 0 {
		allErrors = append(allErrors, field.Invalid(retry.Child("maxNonceRetries"), p.Retry.MaxNonceRetries, "must not be negative"))
	}
	if p.Retry.MaxFeeBumps < 0 {
		allErrors = append(allErrors, field.Invalid(retry.Child("maxFeeBumps"), p.Retry.MaxFeeBumps, "must not be negative"))
	}
	if p.Retry.BackoffMultiple < 1 {
		allErrors = append(allErrors, field.Invalid(retry.Child("backoffMultiple"), p.Retry.BackoffMultiple, "must be at least 1"))
	}

	fees := field.NewPath("fees")
	if p.Fees.BumpFactor <= 1 {
		allErrors = append(allErrors, field.Invalid(fees.Child("bumpFactor"), p.Fees.BumpFactor, "must be greater than 1"))
	}
	if p.Fees.BaseFeeMultiplier < 1 {
		allErrors = append(allErrors, field.Invalid(fees.Child("baseFeeMultiplier"), p.Fees.BaseFeeMultiplier, "must be at least 1"))
	}
	if p.Fees.FallbackTipGwei.IsNegative() {
		allErrors = append(allErrors, field.Invalid(fees.Child("fallbackTipGwei"), p.Fees.FallbackTipGwei.String(), "must not be negative"))
	}
	if p.Fees.MaxFeePerGasGwei.IsNegative() {
		allErrors = append(allErrors, field.Invalid(fees.Child("maxFeePerGasGwei"), p.Fees.MaxFeePerGasGwei.String(), "must not be negative"))
	}

	timeouts := field.NewPath("timeouts")
	for name, d := range map[string]time.Duration{
		"chainQuery":          p.Timeouts.ChainQuery,
		"feeEstimation":       p.Timeouts.FeeEstimation,
		"submission":          p.Timeouts.Submission,
		"receiptQuery":        p.Timeouts.ReceiptQuery,
		"receiptPollInterval": p.Timeouts.ReceiptPollInterval,
		"receiptTimeout":      p.Timeouts.ReceiptTimeout,
	} {
		if d <= 0 {
			allErrors = append(allErrors, field.Invalid(timeouts.Child(name), d.String(), "must be positive"))
		}
	}

	switch p.Nonce.Source {
	case NonceSource_Latest, NonceSource_Pending:
	default:
		allErrors = append(allErrors, field.NotSupported(field.NewPath("nonce", "source"), p.Nonce.Source,
			[]string{string(NonceSource_Latest), string(NonceSource_Pending)}))
	}

	if p.RateLimit.RequestsPerSecond < 0 {
		allErrors = append(allErrors, field.Invalid(field.NewPath("rateLimit", "requestsPerSecond"), p.RateLimit.RequestsPerSecond, "must not be negative"))
	}

	if len(allErrors) > 0 {
		return allErrors.ToAggregate()
	}
	return nil
}

var weiPerGwei = decimal.New(1, 9)

// GweiToWei converts a gwei amount to wei, truncating anything below one wei.
func GweiToWei(gwei decimal.Decimal) *big.Int {
	return gwei.Mul(weiPerGwei).BigInt()
}

// WeiToGwei is the inverse of GweiToWei, used for logging.
func WeiToGwei(wei *big.Int) decimal.Decimal {
	if wei == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(wei, 0).Div(weiPerGwei)
}

type AWSKMSConfig struct {
	KeyID    string `json:"keyId" yaml:"keyId"`
	Region   string `json:"region" yaml:"region"`
	Endpoint string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
}

func (c *AWSKMSConfig) Validate() error {
	var allErrors field.ErrorList
	if c.KeyID == "" {
		allErrors = append(allErrors, field.Required(field.NewPath("keyId"), "keyId is required"))
	}
	if c.Region == "" {
		allErrors = append(allErrors, field.Required(field.NewPath("region"), "region is required"))
	}
	if len(allErrors) > 0 {
		return allErrors.ToAggregate()
	}
	return nil
}

type RemoteSignerConfig struct {
	Url         string `json:"url" yaml:"url"`
	FromAddress string `json:"fromAddress" yaml:"fromAddress"`
}

func (rsc *RemoteSignerConfig) Validate() error {
	var allErrors field.ErrorList
	if rsc.Url == "" {
		allErrors = append(allErrors, field.Required(field.NewPath("url"), "url is required"))
	}
	if rsc.FromAddress == "" {
		allErrors = append(allErrors, field.Required(field.NewPath("fromAddress"), "fromAddress is required"))
	} else if !common.IsHexAddress(rsc.FromAddress) {
		allErrors = append(allErrors, field.Invalid(field.NewPath("fromAddress"), rsc.FromAddress, "must be a hex address"))
	}
	if len(allErrors) > 0 {
		return allErrors.ToAggregate()
	}
	return nil
}

type PersistenceConfig struct {
	Type          PersistenceType `json:"type"`
	DataDir       string          `json:"dataDir"`
	RedisAddress  string          `json:"redisAddress"`
	RedisPassword string          `json:"redisPassword"`
	RedisDB       int             `json:"redisDb"`
}

// ContractEntry names one deployed contract and the ABI describing it.
type ContractEntry struct {
	Name    string
	Address common.Address
	AbiPath string
}

// ParseContractEntry parses "name=0xaddress:path/to/abi.json".
func ParseContractEntry(s string) (*ContractEntry, error) {
	name, rest, ok := strings.Cut(s, "=")
	if !ok || name == "" {
		return nil, fmt.Errorf("invalid contract entry %q: expected name=0xaddress:abiPath", s)
	}
	addr, path, ok := strings.Cut(rest, ":")
	if !ok || path == "" {
		return nil, fmt.Errorf("invalid contract entry %q: missing abi path", s)
	}
	if !common.IsHexAddress(addr) {
		return nil, fmt.Errorf("invalid contract entry %q: bad address %q", s, addr)
	}
	return &ContractEntry{
		Name:    strings.TrimSpace(name),
		Address: common.HexToAddress(addr),
		AbiPath: path,
	}, nil
}

// RelayerConfig represents the complete configuration for a relayer process
type RelayerConfig struct {
	RpcUrl string `json:"rpc_url"`

	// Expected chain; zero means whatever the node reports
	ChainID ChainId `json:"chain_id"`

	SignerType   SignerType          `json:"signer_type"`
	PrivateKey   string              `json:"-"`
	AWSKMS       *AWSKMSConfig       `json:"aws_kms,omitempty"`
	RemoteSigner *RemoteSignerConfig `json:"remote_signer,omitempty"`

	Persistence PersistenceConfig `json:"persistence"`
	Contracts   []*ContractEntry  `json:"contracts"`
	MetricsAddr string            `json:"metrics_addr"`

	Debug bool `json:"debug"`

	Policy *RelayPolicy `json:"-"`
}

// ResolveLegacyEnv fills the RPC URL and private key from the older variable
// names when the current ones are unset.
func (c *RelayerConfig) ResolveLegacyEnv(getenv func(string) string) {
	if c.RpcUrl == "" {
		c.RpcUrl = getenv(EnvLegacyWeb3Node)
	}
	if c.PrivateKey == "" && c.SignerType == SignerType_PrivateKey {
		c.PrivateKey = getenv(EnvLegacyPrivateKey)
	}
}

// Validate validates the relayer configuration
func (c *RelayerConfig) Validate() error {
	var allErrors field.ErrorList

	if c.RpcUrl == "" {
		allErrors = append(allErrors, field.Required(field.NewPath("rpcUrl"), "rpc url is required"))
	}
	if c.ChainID != 0 {
		if _, ok := ChainIdToName[c.ChainID]; !ok {
			allErrors = append(allErrors, field.NotSupported(field.NewPath("chainId"), c.ChainID,
				[]string{GetSupportedChainIDsString()}))
		}
	}

	signerPath := field.NewPath("signer")
	switch c.SignerType {
	case SignerType_PrivateKey:
		key := strings.TrimPrefix(c.PrivateKey, "0x")
		if key == "" {
			allErrors = append(allErrors, field.Required(signerPath.Child("privateKey"), "private key is required"))
		} else if len(key) != 64 {
			allErrors = append(allErrors, field.Invalid(signerPath.Child("privateKey"), util.RedactHex(key),
				fmt.Sprintf("must be 32 bytes (64 hex chars), got %d chars", len(key))))
		} else if _, err := util.DeriveAddressFromECDSAPrivateKeyString(key); err != nil {
			allErrors = append(allErrors, field.Invalid(signerPath.Child("privateKey"), util.RedactHex(key), err.Error()))
		}
	case SignerType_AWSKMS:
		if c.AWSKMS == nil {
			allErrors = append(allErrors, field.Required(signerPath.Child("awsKms"), "aws kms config is required"))
		} else if err := c.AWSKMS.Validate(); err != nil {
			allErrors = append(allErrors, field.Invalid(signerPath.Child("awsKms"), c.AWSKMS.KeyID, err.Error()))
		}
	case SignerType_Web3Signer:
		if c.RemoteSigner == nil {
			allErrors = append(allErrors, field.Required(signerPath.Child("remoteSigner"), "remote signer config is required"))
		} else if err := c.RemoteSigner.Validate(); err != nil {
			allErrors = append(allErrors, field.Invalid(signerPath.Child("remoteSigner"), c.RemoteSigner.Url, err.Error()))
		}
	default:
		allErrors = append(allErrors, field.NotSupported(signerPath.Child("type"), c.SignerType,
			[]string{string(SignerType_PrivateKey), string(SignerType_AWSKMS), string(SignerType_Web3Signer)}))
	}

	persistencePath := field.NewPath("persistence")
	switch c.Persistence.Type {
	case PersistenceType_Memory, "":
	case PersistenceType_Badger:
		if c.Persistence.DataDir == "" {
			allErrors = append(allErrors, field.Required(persistencePath.Child("dataDir"), "data dir is required for badger"))
		}
	case PersistenceType_Redis:
		if c.Persistence.RedisAddress == "" {
			allErrors = append(allErrors, field.Required(persistencePath.Child("redisAddress"), "redis address is required for redis"))
		}
	default:
		allErrors = append(allErrors, field.NotSupported(persistencePath.Child("type"), c.Persistence.Type,
			[]string{string(PersistenceType_Memory), string(PersistenceType_Badger), string(PersistenceType_Redis)}))
	}

	seen := make(map[string]struct{}, len(c.Contracts))
	for i, entry := range c.Contracts {
		p := field.NewPath("contracts").Index(i)
		if _, dup := seen[entry.Name]; dup {
			allErrors = append(allErrors, field.Duplicate(p.Child("name"), entry.Name))
		}
		seen[entry.Name] = struct{}{}
		if entry.Address == (common.Address{}) {
			allErrors = append(allErrors, field.Invalid(p.Child("address"), entry.Address.Hex(), "must not be the zero address"))
		}
	}

	if c.Policy != nil {
		if err := c.Policy.Validate(); err != nil {
			allErrors = append(allErrors, field.Invalid(field.NewPath("policy"), "", err.Error()))
		}
	}

	if len(allErrors) > 0 {
		return allErrors.ToAggregate()
	}
	return nil
}

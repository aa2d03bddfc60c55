package abiEncoder

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/crypto/sha3"
)

// MethodDescriptor is one callable function of a contract.
type MethodDescriptor struct {
	Name            string
	Signature       string
	Selector        [4]byte
	Inputs          abi.Arguments
	Outputs         abi.Arguments
	StateMutability string
}

// IsReadOnly reports whether the method can be served by eth_call alone.
func (m *MethodDescriptor) IsReadOnly() bool {
	return m.StateMutability == "view" || m.StateMutability == "pure"
}

func (m *MethodDescriptor) String() string {
	return m.Signature
}

// ComputeSelector returns the first four bytes of keccak256(signature).
func ComputeSelector(signature string) [4]byte {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(signature))
	var sel [4]byte
	copy(sel[:], h.Sum(nil)[:4])
	return sel
}

func newMethodDescriptor(m abi.Method) *MethodDescriptor {
	return &MethodDescriptor{
		Name:            m.RawName,
		Signature:       m.Sig,
		Selector:        ComputeSelector(m.Sig),
		Inputs:          m.Inputs,
		Outputs:         m.Outputs,
		StateMutability: m.StateMutability,
	}
}

// ContractBinding pairs a deployed address with the ABI describing it. It is
// immutable once loaded.
type ContractBinding struct {
	Name    string
	Address common.Address
	ABI     abi.ABI

	bySignature map[string]*MethodDescriptor
	byName      map[string][]*MethodDescriptor
}

// artifact covers hardhat and truffle build outputs; both carry the ABI under "abi".
type artifact struct {
	ContractName string          `json:"contractName"`
	Abi          json.RawMessage `json:"abi"`
}

// LoadContractBinding builds a binding from a raw ABI array or a build artifact.
func LoadContractBinding(name string, address common.Address, data []byte) (*ContractBinding, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("empty ABI for contract %q", name)
	}

	abiJSON := trimmed
	if trimmed[0] == '{' {
		var a artifact
		if err := json.Unmarshal(trimmed, &a); err != nil {
			return nil, fmt.Errorf("failed to parse artifact for contract %q: %w", name, err)
		}
		if len(a.Abi) == 0 {
			return nil, fmt.Errorf("artifact for contract %q has no abi field", name)
		}
		abiJSON = a.Abi
		if name == "" {
			name = a.ContractName
		}
	}

	parsed, err := abi.JSON(bytes.NewReader(abiJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to parse ABI for contract %q: %w", name, err)
	}

	b := &ContractBinding{
		Name:        name,
		Address:     address,
		ABI:         parsed,
		bySignature: make(map[string]*MethodDescriptor, len(parsed.Methods)),
		byName:      make(map[string][]*MethodDescriptor),
	}
	for _, m := range parsed.Methods {
		md := newMethodDescriptor(m)
		b.bySignature[md.Signature] = md
		b.byName[md.Name] = append(b.byName[md.Name], md)
	}
	for _, overloads := range b.byName {
		sort.Slice(overloads, func(i, j int) bool { return overloads[i].Signature < overloads[j].Signature })
	}
	return b, nil
}

// LoadContractBindingFromFile reads an ABI or artifact from disk. An empty name
// falls back to the artifact's contractName, then the file name.
func LoadContractBindingFromFile(name string, address common.Address, path string) (*ContractBinding, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read ABI file %s: %w", path, err)
	}
	b, err := LoadContractBinding(name, address, data)
	if err != nil {
		return nil, err
	}
	if b.Name == "" {
		b.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return b, nil
}

// Method resolves a method by bare name, or by full signature for overloads.
func (b *ContractBinding) Method(nameOrSig string) (*MethodDescriptor, error) {
	nameOrSig = strings.ReplaceAll(nameOrSig, " ", "")
	if strings.Contains(nameOrSig, "(") {
		md, ok := b.bySignature[nameOrSig]
		if !ok {
			return nil, fmt.Errorf("contract %s has no method %s", b.Name, nameOrSig)
		}
		return md, nil
	}
	overloads := b.byName[nameOrSig]
	switch len(overloads) {
	case 0:
		return nil, fmt.Errorf("contract %s has no method %s", b.Name, nameOrSig)
	case 1:
		return overloads[0], nil
	default:
		sigs := make([]string, 0, len(overloads))
		for _, o := range overloads {
			sigs = append(sigs, o.Signature)
		}
		return nil, fmt.Errorf("method %s on contract %s is overloaded, use one of: %s",
			nameOrSig, b.Name, strings.Join(sigs, ", "))
	}
}

// Methods returns every method signature, sorted.
func (b *ContractBinding) Methods() []string {
	sigs := make([]string, 0, len(b.bySignature))
	for sig := range b.bySignature {
		sigs = append(sigs, sig)
	}
	sort.Strings(sigs)
	return sigs
}

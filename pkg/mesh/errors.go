package mesh

import (
	"errors"
	"fmt"
)

// Key errors.
var (
	ErrKeyIndexOutOfRange = errors.New("key index out of range")
	ErrDuplicateKeyIndex  = errors.New("key index already in use")
	ErrKeyInUse           = errors.New("key is in use")
	ErrInvalidKeyLength   = errors.New("invalid key length")
	ErrNoNetworkKey       = errors.New("node has no network key")
	ErrInvalidPhase       = errors.New("invalid key refresh phase")
)

// Graph integrity errors.
var (
	ErrNodeAlreadyExists            = errors.New("node already exists")
	ErrProvisionerAlreadyExists     = errors.New("provisioner already exists")
	ErrDoesNotBelongToNetwork       = errors.New("does not belong to the network")
	ErrNoAddressesAvailable         = errors.New("no addresses available")
	ErrAddressAlreadyInUse          = errors.New("address already in use")
	ErrAddressNotInAllocatedRanges  = errors.New("address not in allocated ranges")
	ErrOverlappingProvisionerRanges = errors.New("ranges overlap with another provisioner")
	ErrNoUnicastRangeAllocated      = errors.New("no unicast range allocated")
	ErrNoGroupRangeAllocated        = errors.New("no group range allocated")
	ErrNoSceneRangeAllocated        = errors.New("no scene range allocated")
	ErrGroupAlreadyExists           = errors.New("group already exists")
	ErrGroupInUse                   = errors.New("group is in use")
	ErrSceneAlreadyExists           = errors.New("scene already exists")
	ErrSceneInUse                   = errors.New("scene is in use")
	ErrCannotRemove                 = errors.New("cannot remove")
	ErrInvalidElementCount          = errors.New("invalid element count")
	ErrInvalidElementIndex          = errors.New("invalid element index")
	ErrInvalidSceneNumber           = errors.New("invalid scene number")
)

// ImportError is returned when a network document cannot be imported.
// It wraps the underlying decoding or validation error.
type ImportError struct {
	Err error
}

func (e *ImportError) Error() string {
	return fmt.Sprintf("import network: %v", e.Err)
}

func (e *ImportError) Unwrap() error {
	return e.Err
}

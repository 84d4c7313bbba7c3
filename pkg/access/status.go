package access

// ConfigStatus is the status code of a configuration response.
type ConfigStatus uint8

const (
	StatusSuccess                        ConfigStatus = 0x00
	StatusInvalidAddress                 ConfigStatus = 0x01
	StatusInvalidModel                   ConfigStatus = 0x02
	StatusInvalidAppKeyIndex             ConfigStatus = 0x03
	StatusInvalidNetKeyIndex             ConfigStatus = 0x04
	StatusInsufficientResources          ConfigStatus = 0x05
	StatusKeyIndexAlreadyStored          ConfigStatus = 0x06
	StatusInvalidPublishParameters       ConfigStatus = 0x07
	StatusNotASubscribeModel             ConfigStatus = 0x08
	StatusStorageFailure                 ConfigStatus = 0x09
	StatusFeatureNotSupported            ConfigStatus = 0x0A
	StatusCannotUpdate                   ConfigStatus = 0x0B
	StatusCannotRemove                   ConfigStatus = 0x0C
	StatusCannotBind                     ConfigStatus = 0x0D
	StatusTemporarilyUnableToChangeState ConfigStatus = 0x0E
	StatusCannotSet                      ConfigStatus = 0x0F
	StatusUnspecifiedError               ConfigStatus = 0x10
	StatusInvalidBinding                 ConfigStatus = 0x11
)

// IsSuccess returns true for StatusSuccess.
func (s ConfigStatus) IsSuccess() bool {
	return s == StatusSuccess
}

// String returns the status name.
func (s ConfigStatus) String() string {
	switch s {
	case StatusSuccess:
		return "SUCCESS"
	case StatusInvalidAddress:
		return "INVALID_ADDRESS"
	case StatusInvalidModel:
		return "INVALID_MODEL"
	case StatusInvalidAppKeyIndex:
		return "INVALID_APPKEY_INDEX"
	case StatusInvalidNetKeyIndex:
		return "INVALID_NETKEY_INDEX"
	case StatusInsufficientResources:
		return "INSUFFICIENT_RESOURCES"
	case StatusKeyIndexAlreadyStored:
		return "KEY_INDEX_ALREADY_STORED"
	case StatusInvalidPublishParameters:
		return "INVALID_PUBLISH_PARAMETERS"
	case StatusNotASubscribeModel:
		return "NOT_A_SUBSCRIBE_MODEL"
	case StatusStorageFailure:
		return "STORAGE_FAILURE"
	case StatusFeatureNotSupported:
		return "FEATURE_NOT_SUPPORTED"
	case StatusCannotUpdate:
		return "CANNOT_UPDATE"
	case StatusCannotRemove:
		return "CANNOT_REMOVE"
	case StatusCannotBind:
		return "CANNOT_BIND"
	case StatusTemporarilyUnableToChangeState:
		return "TEMPORARILY_UNABLE_TO_CHANGE_STATE"
	case StatusCannotSet:
		return "CANNOT_SET"
	case StatusUnspecifiedError:
		return "UNSPECIFIED_ERROR"
	case StatusInvalidBinding:
		return "INVALID_BINDING"
	default:
		return "UNKNOWN"
	}
}

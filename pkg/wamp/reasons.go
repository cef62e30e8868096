package wamp

// Error and close reasons used by the dealer.
const (
	ErrProcedureAlreadyExists URI = "wamp.error.procedure_already_exists"
	ErrNoSuchProcedure        URI = "wamp.error.no_such_procedure"
	ErrNoSuchRegistration     URI = "wamp.error.no_such_registration"
	ErrInvalidURI             URI = "wamp.error.invalid_uri"
	ErrInvalidArgument        URI = "wamp.error.invalid_argument"
	ErrNoSuchRealm            URI = "wamp.error.no_such_realm"
	ErrProtocolViolation      URI = "wamp.error.protocol_violation"
	ErrNotAuthorized          URI = "wamp.error.not_authorized"
	ErrUnavailable            URI = "wamp.error.unavailable"
	ErrCanceled               URI = "wamp.error.canceled"
	ErrRuntimeError           URI = "wamp.error.runtime_error"

	CloseRealm          URI = "wamp.close.close_realm"
	CloseGoodbyeAck     URI = "wamp.close.goodbye_and_out"
	CloseSystemShutdown URI = "wamp.close.system_shutdown"
)

// Meta event topics emitted by the dealer.
const (
	MetaOnRegister   URI = "wamp.registration.on_register"
	MetaOnUnregister URI = "wamp.registration.on_unregister"
	MetaOnJoin       URI = "wamp.session.on_join"
	MetaOnLeave      URI = "wamp.session.on_leave"
)

// Role and feature names announced in WELCOME.
const (
	RoleDealer = "dealer"

	FeaturePatternBasedRegistration = "pattern_based_registration"
	FeatureSharedRegistration       = "shared_registration"
	FeatureRegistrationMetaAPI      = "registration_meta_api"
	FeatureCallerIdentification     = "caller_identification"
)

// DealerRoles is the roles dictionary the router announces in WELCOME.
func DealerRoles() Dict {
	return Dict{
		RoleDealer: Dict{
			"features": Dict{
				FeaturePatternBasedRegistration: true,
				FeatureSharedRegistration:       true,
				FeatureRegistrationMetaAPI:      true,
				FeatureCallerIdentification:     true,
			},
		},
	}
}

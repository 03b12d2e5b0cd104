package attention

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	svcErr "github.com/oggyb/attention/internal/errors"
)

// usernamePattern allows ASCII letters, digits and @ . + - _
var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9.@+_-]+$`)

// requestValidate is the validator for request documents.
// Initialized in init() with the username tag.
var requestValidate *validator.Validate

func init() {
	requestValidate = validator.New(validator.WithRequiredStructEnabled())
	requestValidate.RegisterTagNameFunc(jsonFieldName)
	_ = requestValidate.RegisterValidation("username", func(fl validator.FieldLevel) bool {
		return usernamePattern.MatchString(fl.Field().String())
	})
}

type registerUserRequest struct {
	Username  string `json:"username" validate:"required,username,max=150"`
	Password  string `json:"password" validate:"required,min=8,max=72"`
	FirstName string `json:"first_name" validate:"required,max=150"`
	LastName  string `json:"last_name" validate:"required,max=150"`
	Email     string `json:"email" validate:"omitempty,email,max=254"`
}

type registerDeviceRequest struct {
	FCMToken string `json:"fcm_token" validate:"required,max=512"`
}

type addFriendRequest struct {
	Username string `json:"username" validate:"required"`
}

type renameFriendRequest struct {
	Username string `json:"username" validate:"required"`
	NewName  string `json:"new_name" validate:"required,max=150"`
}

type getFriendNameRequest struct {
	Username string `json:"username" validate:"required"`
}

type removeFriendRequest struct {
	Friend string `json:"friend" validate:"required"`
}

// getUserInfoRequest pages the friend list when page_size is set.
type getUserInfoRequest struct {
	PageSize  int    `json:"page_size" validate:"omitempty,min=1,max=100"`
	PageToken string `json:"page_token"`
}

type deleteUserDataRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// sendAlertRequest: message must be present but may be empty; a "null"
// message is shown by clients as the default alert.
type sendAlertRequest struct {
	To      string  `json:"to" validate:"required"`
	Message *string `json:"message" validate:"required,max=1000"`
}

type alertReadRequest struct {
	AlertID  string `json:"alert_id" validate:"required,max=100"`
	From     string `json:"from" validate:"required"`
	FCMToken string `json:"fcm_token" validate:"required"`
}

// decode copies a Struct document into dst and validates it.
// Any malformed or invalid input is reported as CodeInvalidArgument.
func decode(in *structpb.Struct, dst any) error {
	raw, err := protojson.Marshal(in)
	if err != nil {
		return svcErr.InvalidArg("malformed request")
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return svcErr.InvalidArg(fmt.Sprintf("%s has the wrong type", typeErr.Field))
		}
		return svcErr.InvalidArg("malformed request")
	}
	if err := requestValidate.Struct(dst); err != nil {
		return svcErr.InvalidArg(describe(err))
	}
	return nil
}

// describe turns validator errors into a short client-facing message.
func describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return "invalid request"
	}

	var missing, invalid []string
	for _, fe := range verrs {
		if fe.Tag() == "required" {
			missing = append(missing, fe.Field())
		} else {
			invalid = append(invalid, fe.Field())
		}
	}
	var parts []string
	if len(missing) > 0 {
		parts = append(parts, "missing required parameter(s): "+strings.Join(missing, ", "))
	}
	if len(invalid) > 0 {
		parts = append(parts, "invalid parameter(s): "+strings.Join(invalid, ", "))
	}
	return strings.Join(parts, "; ")
}

func jsonFieldName(f reflect.StructField) string {
	name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
	if name == "-" {
		return ""
	}
	return name
}

// encode wraps data in the {success, message, data} envelope.
func encode(message string, data any) (*structpb.Struct, error) {
	doc := map[string]any{
		"success": true,
		"message": message,
		"data":    nil,
	}
	if data != nil {
		// round-trip through JSON so struct tags decide the field names
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, svcErr.Internal("encode response", err)
		}
		var generic any
		if err := json.Unmarshal(raw, &generic); err != nil {
			return nil, svcErr.Internal("encode response", err)
		}
		doc["data"] = generic
	}
	out, err := structpb.NewStruct(doc)
	if err != nil {
		return nil, svcErr.Internal("encode response", err)
	}
	return out, nil
}

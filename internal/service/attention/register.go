package attention

import (
	"google.golang.org/grpc"

	"github.com/oggyb/attention/internal/app"
)

// Registrar ties the Attention service into the gRPC server
type Registrar struct {
	appCtx *app.AppContext
}

// NewRegistrar creates a new Registrar for the Attention service
func NewRegistrar(appCtx *app.AppContext) *Registrar {
	return &Registrar{appCtx: appCtx}
}

// Register attaches the Attention service implementation to the gRPC server
func (r *Registrar) Register(s *grpc.Server) {
	s.RegisterService(&ServiceDesc, NewAttentionService(r.appCtx))
}

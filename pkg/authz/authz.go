package authz

import (
	"os"

	"wavesight-core/pkg/config"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	fileadapter "github.com/casbin/casbin/v2/persist/file-adapter"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("authz",
	fx.Provide(NewEnforcer),
)

const (
	RoleUser      = "user"
	RoleModerator = "moderator"
	RoleAdmin     = "admin"
)

const defaultModel = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub) && keyMatch2(r.obj, p.obj) && (r.act == p.act || p.act == "*")
`

// defaultPolicies apply when ACCESS_CONTROL.POLICY is not set.
var defaultPolicies = [][]string{
	{RoleModerator, "/v1/users/:id/restriction", "PUT"},
}

var defaultGroupings = [][]string{
	{RoleAdmin, RoleModerator},
}

func NewEnforcer(cfg *config.Config) (*casbin.Enforcer, error) {
	m, err := loadModel(cfg.AccessControl.Model)
	if err != nil {
		return nil, err
	}

	if path := cfg.AccessControl.Policy; path != "" {
		zap.L().Info("[Authz] loading policy file", zap.String("path", path))
		return casbin.NewEnforcer(m, fileadapter.NewAdapter(path))
	}

	e, err := casbin.NewEnforcer(m)
	if err != nil {
		return nil, err
	}
	if _, err := e.AddPolicies(defaultPolicies); err != nil {
		return nil, err
	}
	if _, err := e.AddGroupingPolicies(defaultGroupings); err != nil {
		return nil, err
	}
	return e, nil
}

func loadModel(path string) (model.Model, error) {
	if path == "" {
		return model.NewModelFromString(defaultModel)
	}
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	return model.NewModelFromFile(path)
}

package domain

import "errors"

var (
	// ErrUserNotFound 用户不存在
	ErrUserNotFound = errors.New("user not found")
	// ErrUserAlreadyExists 用户名已被占用
	ErrUserAlreadyExists = errors.New("user already exists")
	// ErrOrgNotFound 组织不存在
	ErrOrgNotFound = errors.New("organization not found")
	// ErrInvalidCredentials 用户名或密码错误
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUserInactive 用户已停用
	ErrUserInactive = errors.New("user is inactive")
	// ErrForbidden 无权访问该组织或数据
	ErrForbidden = errors.New("forbidden")
	// ErrInvalidQuery 查询参数非法
	ErrInvalidQuery = errors.New("invalid query")
)

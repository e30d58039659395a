// Package callsvc 面向 UI 的群通话操作：发起、呼叫、拒绝、排除
// 组合排除/呼叫集合、命令发送器与本地会话信息
package callsvc

import (
	"context"
	"strconv"

	"kama_call_ring/internal/dao/mysql/repository"
	"kama_call_ring/internal/model"
	"kama_call_ring/internal/service/command"
	"kama_call_ring/internal/service/roster"
	"kama_call_ring/pkg/errorx"

	"go.uber.org/zap"
)

// Roster 排除集合与呼叫集合
type Roster interface {
	Exclude(ctx context.Context, chatID, userID int64) error
	Unexclude(ctx context.Context, chatID, userID int64) error
	StartCall(ctx context.Context, chat model.ChatRef, admins, all []command.Target) error
	CallUser(ctx context.Context, chatID, userID int64) (roster.CallingEntry, error)
	CallAll(ctx context.Context, chatID int64, participants []int64) ([]int64, error)
}

// Sender 命令发送
type Sender interface {
	SendCommand(ctx context.Context, chat model.ChatRef, cmd command.Command, target *command.Target) error
	SendExcludeBatch(ctx context.Context, chat model.ChatRef, targets []command.Target) error
}

// Directory 本地已知的会话信息
type Directory interface {
	FullChat(chatID int64) (*model.FullChat, error)
}

// ManagerChecker 本地用户能否管理该会话的通话
type ManagerChecker interface {
	CanManageCalls(ctx context.Context, chat model.ChatRef) (bool, error)
}

// StartInput 发起通话的参与者，为空时从本地会话信息补全
type StartInput struct {
	AdminIDs       []int64
	ParticipantIDs []int64
}

// Service 通话服务
type Service struct {
	roster    Roster
	sender    Sender
	directory Directory
	manager   ManagerChecker
	users     repository.UserRepository
	self      command.Target
}

// NewService 构造函数，manager 为 nil 时不做权限检查
func NewService(self command.Identity, r Roster, s Sender, dir Directory, manager ManagerChecker, users repository.UserRepository) *Service {
	target := self.Self()
	if target.FirstName == "" {
		target.FirstName = self.DisplayName
	}
	return &Service{roster: r, sender: s, directory: dir, manager: manager, users: users, self: target}
}

// StartCall 管理员发起群通话
func (s *Service) StartCall(ctx context.Context, chat model.ChatRef, in StartInput) error {
	if err := s.checkManager(ctx, chat); err != nil {
		return err
	}
	admins, all := in.AdminIDs, in.ParticipantIDs
	if len(admins) == 0 || len(all) == 0 {
		full, err := s.directory.FullChat(chat.ID)
		if err != nil && !errorx.IsNotFound(err) {
			return err
		}
		if full != nil {
			if len(admins) == 0 {
				admins = full.AdminIDs()
			}
			if len(all) == 0 {
				all = full.ParticipantIDs()
			}
		}
	}
	if len(all) == 0 {
		return errorx.Newf(errorx.CodeInvalidParam, "chat %d has no known participants", chat.ID)
	}

	adminTargets, err := s.targets(admins)
	if err != nil {
		return err
	}
	allTargets := make([]command.Target, 0, len(all))
	for _, id := range all {
		allTargets = append(allTargets, command.Target{UserID: id})
	}
	zap.L().Info("发起群通话", zap.Int64("chat_id", chat.ID), zap.Int("admins", len(admins)), zap.Int("participants", len(all)))
	return s.roster.StartCall(ctx, chat, adminTargets, allTargets)
}

// CallUser 重新呼叫单个用户
func (s *Service) CallUser(ctx context.Context, chat model.ChatRef, userID int64) (roster.CallingEntry, error) {
	target, err := s.target(userID)
	if err != nil {
		return roster.CallingEntry{}, err
	}
	entry, err := s.roster.CallUser(ctx, chat.ID, userID)
	if err != nil {
		return roster.CallingEntry{}, err
	}
	if err := s.sender.SendCommand(ctx, chat, command.InviteUser, &target); err != nil {
		return entry, err
	}
	return entry, nil
}

// CallAll 呼叫全部未在呼叫中且未被排除的参与者，participants 为空时从本地会话信息补全
func (s *Service) CallAll(ctx context.Context, chat model.ChatRef, participants []int64) ([]int64, error) {
	if len(participants) == 0 {
		full, err := s.directory.FullChat(chat.ID)
		if err != nil {
			return nil, err
		}
		participants = full.ParticipantIDs()
	}
	added, err := s.roster.CallAll(ctx, chat.ID, participants)
	if err != nil {
		return nil, err
	}
	if err := s.sender.SendCommand(ctx, chat, command.InviteAll, nil); err != nil {
		return added, err
	}
	return added, nil
}

// Refuse 本地用户拒绝加入，消息以名字提及自己，接收端据此识别拒绝者
func (s *Service) Refuse(ctx context.Context, chat model.ChatRef) error {
	self := s.self
	return s.sender.SendCommand(ctx, chat, command.RefuseInvite, &self)
}

// SendExclude 排除若干用户并通知他们
func (s *Service) SendExclude(ctx context.Context, chat model.ChatRef, userIDs []int64) error {
	if len(userIDs) == 0 {
		return errorx.New(errorx.CodeInvalidParam, "no users to exclude")
	}
	targets, err := s.targets(userIDs)
	if err != nil {
		return err
	}
	for _, id := range userIDs {
		if err := s.roster.Exclude(ctx, chat.ID, id); err != nil {
			return err
		}
	}
	return s.sender.SendExcludeBatch(ctx, chat, targets)
}

// SendUnexclude 取消排除并通知该用户
func (s *Service) SendUnexclude(ctx context.Context, chat model.ChatRef, userID int64) error {
	target, err := s.target(userID)
	if err != nil {
		return err
	}
	if err := s.roster.Unexclude(ctx, chat.ID, userID); err != nil {
		return err
	}
	return s.sender.SendCommand(ctx, chat, command.Unexclude, &target)
}

func (s *Service) checkManager(ctx context.Context, chat model.ChatRef) error {
	if s.manager == nil {
		return nil
	}
	ok, err := s.manager.CanManageCalls(ctx, chat)
	if err != nil {
		return err
	}
	if !ok {
		return errorx.ErrNotPermitted
	}
	return nil
}

func (s *Service) target(userID int64) (command.Target, error) {
	ts, err := s.targets([]int64{userID})
	if err != nil {
		return command.Target{}, err
	}
	return ts[0], nil
}

// targets 查询用户资料，缺失的用户以 ID 作为提及文本
func (s *Service) targets(userIDs []int64) ([]command.Target, error) {
	users, err := s.users.FindByIDs(userIDs)
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]model.UserInfo, len(users))
	for _, u := range users {
		byID[u.UserID] = u
	}
	out := make([]command.Target, 0, len(userIDs))
	for _, id := range userIDs {
		u, ok := byID[id]
		if !ok || (u.FirstName == "" && u.UserName == "") {
			zap.L().Warn("缺少用户资料，以 ID 提及", zap.Int64("user_id", id))
			out = append(out, command.Target{UserID: id, FirstName: strconv.FormatInt(id, 10)})
			continue
		}
		out = append(out, command.TargetFromUser(u))
	}
	return out, nil
}

package api

import (
	"context"

	"github.com/matheus3301/wlite/internal/model"
	"github.com/matheus3301/wlite/internal/story"
	"google.golang.org/protobuf/types/known/emptypb"
)

// StoryService exposes the status repository.
type StoryService struct {
	stories *story.Repository
}

// NewStoryService creates a new story service.
func NewStoryService(stories *story.Repository) *StoryService {
	return &StoryService{stories: stories}
}

func (s *StoryService) CreateStatus(ctx context.Context, req *CreateStatusRequest) (*StatusResponse, error) {
	st, err := s.stories.Create(ctx, story.Draft{
		Content:         req.Content,
		Type:            model.StatusType(req.Type),
		BackgroundColor: req.BackgroundColor,
		Caption:         req.Caption,
	})
	if err != nil {
		return nil, toStatus("create status", err)
	}
	return &StatusResponse{Status: *st}, nil
}

func (s *StoryService) ListMine(_ context.Context, _ *emptypb.Empty) (*StatusList, error) {
	list, err := s.stories.ListMine()
	if err != nil {
		return nil, toStatus("list statuses", err)
	}
	return &StatusList{Statuses: list}, nil
}

func (s *StoryService) ListOthers(_ context.Context, _ *emptypb.Empty) (*StatusList, error) {
	list, err := s.stories.ListOthers()
	if err != nil {
		return nil, toStatus("list statuses", err)
	}
	return &StatusList{Statuses: list}, nil
}

func (s *StoryService) ListFor(_ context.Context, req *ListStatusesRequest) (*StatusList, error) {
	list, err := s.stories.ListFor(req.UserIDs)
	if err != nil {
		return nil, toStatus("list statuses", err)
	}
	return &StatusList{Statuses: list}, nil
}

func (s *StoryService) ViewStatus(ctx context.Context, req *ViewStatusRequest) (*StatusResponse, error) {
	st, err := s.stories.View(ctx, req.StatusID, req.ViewerID)
	if err != nil {
		return nil, toStatus("view status", err)
	}
	return &StatusResponse{Status: *st}, nil
}

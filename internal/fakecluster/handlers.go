package fakecluster

import (
	"github.com/gofiber/fiber/v2"

	"yqhp/release-graph/pkg/types"
)

// createTask handles PUT /queue/v1/task/:taskId
func (s *Server) createTask(c *fiber.Ctx) error {
	taskID := c.Params("taskId")

	var def types.TaskDefinition
	if err := c.BodyParser(&def); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Code:    "InputValidationError",
			Message: "Invalid request body: " + err.Error(),
		})
	}
	if def.ProvisionerID == "" || def.WorkerType == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Code:    "InputValidationError",
			Message: "provisionerId and workerType are required",
		})
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.createBudget == 0 {
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Code:    "InternalServerError",
			Message: "injected createTask failure",
		})
	}
	if _, exists := s.tasks[taskID]; exists {
		return c.Status(fiber.StatusConflict).JSON(ErrorResponse{
			Code:    "RequestConflict",
			Message: "task " + taskID + " already exists",
		})
	}
	for _, dep := range def.Dependencies {
		if _, ok := s.tasks[dep]; !ok {
			return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
				Code:    "InputError",
				Message: "dependency " + dep + " does not exist",
			})
		}
	}
	if s.createBudget > 0 {
		s.createBudget--
	}

	state := "pending"
	if len(def.Dependencies) > 0 {
		state = "unscheduled"
	}
	stored := &storedTask{
		Definition: &def,
		Status: types.TaskStatus{
			TaskID:        taskID,
			ProvisionerID: def.ProvisionerID,
			WorkerType:    def.WorkerType,
			TaskGroupID:   def.TaskGroupID,
			State:         state,
			RetriesLeft:   def.Retries,
		},
	}
	s.tasks[taskID] = stored
	s.order = append(s.order, taskID)
	s.indexRoutes(taskID, &def)

	return c.JSON(fiber.Map{"status": stored.Status})
}

// getTask handles GET /queue/v1/task/:taskId
func (s *Server) getTask(c *fiber.Ctx) error {
	stored, ok := s.lookupTask(c.Params("taskId"))
	if !ok {
		return notFound(c, "task "+c.Params("taskId"))
	}
	return c.JSON(stored.Definition)
}

// getTaskStatus handles GET /queue/v1/task/:taskId/status
func (s *Server) getTaskStatus(c *fiber.Ctx) error {
	stored, ok := s.lookupTask(c.Params("taskId"))
	if !ok {
		return notFound(c, "task "+c.Params("taskId"))
	}
	return c.JSON(fiber.Map{"status": stored.Status})
}

// findTask handles GET /index/v1/task/<namespace>
func (s *Server) findTask(c *fiber.Ctx) error {
	namespace := c.Params("*")

	s.mu.Lock()
	s.indexLookups++
	if s.indexFailures > 0 {
		s.indexFailures--
		s.mu.Unlock()
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Code:    "InternalServerError",
			Message: "injected index failure",
		})
	}
	taskID, ok := s.index[namespace]
	s.mu.Unlock()

	if !ok {
		return notFound(c, "indexed task "+namespace)
	}
	return c.JSON(fiber.Map{
		"namespace": namespace,
		"taskId":    taskID,
		"rank":      0,
	})
}

// getSecret handles GET /secrets/v1/secret/<name>
func (s *Server) getSecret(c *fiber.Ctx) error {
	name := c.Params("*")

	s.mu.Lock()
	value, ok := s.secrets[name]
	s.mu.Unlock()

	if !ok {
		return notFound(c, "secret "+name)
	}
	return c.JSON(fiber.Map{"secret": value})
}

func (s *Server) lookupTask(taskID string) (*storedTask, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.tasks[taskID]
	return stored, ok
}

func notFound(c *fiber.Ctx, what string) error {
	return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{
		Code:    "ResourceNotFound",
		Message: what + " not found",
	})
}

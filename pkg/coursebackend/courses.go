package coursebackend

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"

	"github.com/noah-isme/rendus-api/internal/models"
)

// ListCourses returns every course. Failures degrade to an empty list.
func (c *Client) ListCourses(ctx context.Context) ([]models.CoursePreview, error) {
	var courses []models.CoursePreview
	req := request{operation: "list_courses", method: http.MethodGet, path: "/admin/courses"}
	if err := c.do(ctx, req, &courses); err != nil {
		c.degrade(req.operation, err)
		return []models.CoursePreview{}, nil
	}
	if courses == nil {
		courses = []models.CoursePreview{}
	}
	return courses, nil
}

// GetCourse returns the course with its roster and TPs.
func (c *Client) GetCourse(ctx context.Context, courseID uint) (models.Course, error) {
	var course models.Course
	req := request{operation: "get_course", method: http.MethodGet, path: fmt.Sprintf("/admin/courses/%d", courseID)}
	if err := c.do(ctx, req, &course); err != nil {
		return models.Course{}, err
	}
	return course, nil
}

// CreateCourse registers a new course.
func (c *Client) CreateCourse(ctx context.Context, course models.CoursePreview) (models.CoursePreview, error) {
	req, err := jsonRequest("create_course", http.MethodPost, "/admin/courses", course)
	if err != nil {
		return models.CoursePreview{}, err
	}
	var created models.CoursePreview
	if err := c.do(ctx, req, &created); err != nil {
		return models.CoursePreview{}, err
	}
	return created, nil
}

// UpdateCourse replaces a course; the identifier travels in the body.
func (c *Client) UpdateCourse(ctx context.Context, course models.CoursePreview) (models.CoursePreview, error) {
	req, err := jsonRequest("update_course", http.MethodPut, "/admin/courses", course)
	if err != nil {
		return models.CoursePreview{}, err
	}
	var updated models.CoursePreview
	if err := c.do(ctx, req, &updated); err != nil {
		return models.CoursePreview{}, err
	}
	if updated.ID == 0 {
		updated = course
	}
	return updated, nil
}

// DeleteCourse removes a course.
func (c *Client) DeleteCourse(ctx context.Context, courseID uint) error {
	req := request{operation: "delete_course", method: http.MethodDelete, path: fmt.Sprintf("/admin/courses/%d", courseID)}
	return c.do(ctx, req, nil)
}

// ListStudents returns the roster of a course. Failures degrade to an empty list.
func (c *Client) ListStudents(ctx context.Context, courseID uint) ([]models.Student, error) {
	var students []models.Student
	req := request{operation: "list_students", method: http.MethodGet, path: fmt.Sprintf("/course/%d/students", courseID)}
	if err := c.do(ctx, req, &students); err != nil {
		c.degrade(req.operation, err)
		return []models.Student{}, nil
	}
	if students == nil {
		students = []models.Student{}
	}
	return students, nil
}

// GetStudent returns one student of a course.
func (c *Client) GetStudent(ctx context.Context, courseID, studentID uint) (models.Student, error) {
	var student models.Student
	req := request{operation: "get_student", method: http.MethodGet, path: fmt.Sprintf("/course/%d/students/%d", courseID, studentID)}
	if err := c.do(ctx, req, &student); err != nil {
		return models.Student{}, err
	}
	return student, nil
}

// AddStudent enrolls one student.
func (c *Client) AddStudent(ctx context.Context, courseID uint, student models.Student) (models.Student, error) {
	req, err := jsonRequest("add_student", http.MethodPost, fmt.Sprintf("/course/%d/addStudent", courseID), student)
	if err != nil {
		return models.Student{}, err
	}
	var created models.Student
	if err := c.do(ctx, req, &created); err != nil {
		return models.Student{}, err
	}
	return created, nil
}

// ImportStudents uploads a newline-delimited roster file.
func (c *Client) ImportStudents(ctx context.Context, courseID uint, fileName string, content []byte) error {
	req, err := multipartRequest("import_students", fmt.Sprintf("/course/%d/addStudentsFromFile", courseID), fileName, content)
	if err != nil {
		return err
	}
	return c.do(ctx, req, nil)
}

// UpdateStudent replaces a student's details.
func (c *Client) UpdateStudent(ctx context.Context, courseID, studentID uint, student models.Student) (models.Student, error) {
	req, err := jsonRequest("update_student", http.MethodPut, fmt.Sprintf("/course/%d/students/%d", courseID, studentID), student)
	if err != nil {
		return models.Student{}, err
	}
	var updated models.Student
	if err := c.do(ctx, req, &updated); err != nil {
		return models.Student{}, err
	}
	return updated, nil
}

// DeleteStudent removes a student from a course.
func (c *Client) DeleteStudent(ctx context.Context, courseID, studentID uint) error {
	req := request{operation: "delete_student", method: http.MethodDelete, path: fmt.Sprintf("/course/%d/students/%d", courseID, studentID)}
	return c.do(ctx, req, nil)
}

func multipartRequest(operation, path, fileName string, content []byte) (request, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", fileName)
	if err != nil {
		return request{}, fmt.Errorf("build %s form: %w", operation, err)
	}
	if _, err := part.Write(content); err != nil {
		return request{}, fmt.Errorf("build %s form: %w", operation, err)
	}
	if err := writer.Close(); err != nil {
		return request{}, fmt.Errorf("build %s form: %w", operation, err)
	}
	return request{
		operation:   operation,
		method:      http.MethodPost,
		path:        path,
		body:        body.Bytes(),
		contentType: writer.FormDataContentType(),
	}, nil
}
